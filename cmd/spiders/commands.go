package main

import (
	"fmt"
	"net/url"

	"github.com/harrybrwn/spiders/cmd"
	"github.com/harrybrwn/spiders/crawler"
	"github.com/harrybrwn/spiders/internal/logging"
	"github.com/harrybrwn/spiders/storage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newCrawlCmd(conf *cmd.Config) *cobra.Command {
	var sameHost bool
	c := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl a website starting from a url",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := parseSeed(args[0])
			if err != nil {
				return err
			}
			ctx := logging.Stash(cmd.Context(), log.WithField("seed", seed.String()))
			set, closeSet, err := openVisitedSet(ctx, conf)
			if err != nil {
				return err
			}
			defer closeSet()

			host := conf.Host
			if sameHost && host == "" {
				host = seed.Hostname()
			}
			c := crawler.New(
				seed,
				newVisitor(conf, set),
				crawler.WithHost(host),
				crawler.WithLimit(conf.Limit),
				crawler.WithLogger(log),
			)
			defer c.Close()
			out := cmd.OutOrStdout()
			for page, err := range c.All(ctx) {
				if err != nil {
					log.WithError(err).Warn("visit failed")
					continue
				}
				fmt.Fprintf(out, "we visited %s\n", page.URL)
			}
			log.WithFields(logrus.Fields{
				"count":   c.Count(),
				"pending": c.Pending(),
			}).Info("crawl finished")
			return nil
		},
	}
	c.Flags().BoolVar(&sameHost, "same-host", sameHost, "only visit urls on the seed url's host")
	return c
}

func newFetchCmd(conf *cmd.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch a page and print its text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := parseSeed(args[0])
			if err != nil {
				return err
			}
			v := newVisitor(conf, storage.NewInMemoryVisitedSet())
			page, err := v.Fetch(cmd.Context(), u)
			if err != nil {
				return err
			}
			cmd.Println(page.Text())
			return nil
		},
	}
}

func newSaveCmd(conf *cmd.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "save <url>",
		Short: "Crawl a site and print the html of the first page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := parseSeed(args[0])
			if err != nil {
				return err
			}
			c := crawler.New(
				seed,
				newVisitor(conf, storage.NewInMemoryVisitedSet()),
				crawler.WithHost(seed.Hostname()),
				crawler.WithLogger(log),
			)
			defer c.Close()
			page, err := c.Next(cmd.Context())
			if err != nil {
				return err
			}
			html, err := page.HTML()
			if err != nil {
				return err
			}
			cmd.Println(html)
			return nil
		},
	}
}

func newListCmd(conf *cmd.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list <url>",
		Short: "List the urls on a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := parseSeed(args[0])
			if err != nil {
				return err
			}
			v := newVisitor(conf, storage.NewInMemoryVisitedSet())
			page, err := v.Fetch(cmd.Context(), u)
			if err != nil {
				return err
			}
			for _, l := range page.Links {
				cmd.Println(l.String())
			}
			return nil
		},
	}
}

func parseSeed(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("url %q must be http or https", s)
	}
	if u.Host == "" {
		return nil, errors.Errorf("url %q has no host", s)
	}
	return u, nil
}

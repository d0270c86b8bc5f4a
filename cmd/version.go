package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X github.com/harrybrwn/spiders/cmd.version=..."
var (
	version = "dev"
	commit  string
	date    string
)

type VersionInfo struct {
	Version string
	Commit  string
	Date    string
	Go      string
}

func GetVersionInfo() *VersionInfo {
	info := &VersionInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
		Go:      runtime.Version(),
	}
	if info.Commit != "" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				if info.Date == "" {
					info.Date = s.Value
				}
			}
		}
	}
	return info
}

func (vi *VersionInfo) String() string {
	s := vi.Version
	if vi.Commit != "" {
		s += " " + vi.Commit
	}
	if vi.Date != "" {
		s += " " + vi.Date
	}
	return fmt.Sprintf("%s (%s)", s, vi.Go)
}

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(GetVersionInfo().String())
		},
	}
}

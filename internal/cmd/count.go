package cmd

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tigerand/mchown/internal/identity"
	"github.com/tigerand/mchown/internal/logger"
)

// NewCountCmd creates and returns the count subcommand.
// It counts the entries of a tree and, given an owner, how many do not have it.
func NewCountCmd() *cobra.Command {
	var (
		path         string
		user         string
		group        string
		showProgress bool
	)

	cmd := &cobra.Command{
		Use:   "count [PATH]",
		Short: "Count entries in a directory tree and check their owner",
		Long: `Count the files, directories and symbolic links in a directory tree.

With --user and --group every entry's owner is compared as well and the
number of mismatches is reported, which should be zero after mchown ran
with the same owner. Links are checked themselves, not their targets.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				path = args[0]
			}
			var owner *ownerFilter
			if user != "" || group != "" {
				if user == "" || group == "" {
					return fmt.Errorf("--user and --group must be given together")
				}
				uid, err := identity.UID(user)
				if err != nil {
					return err
				}
				gid, err := identity.GID(group)
				if err != nil {
					return err
				}
				owner = &ownerFilter{uid: uid, gid: gid}
			}

			res, err := runCount(path, owner, showProgress)
			if err != nil {
				return fmt.Errorf("error counting files: %w", err)
			}
			res.print(cmd, owner != nil)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", "./", "Path to count files in")
	cmd.Flags().StringVarP(&user, "user", "u", "", "Expected owner (name or uid)")
	cmd.Flags().StringVarP(&group, "group", "g", "", "Expected group (name or gid)")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "Show progress every 10,000 entries")

	return cmd
}

type ownerFilter struct {
	uid, gid uint32
}

type countResult struct {
	files      int
	dirs       int
	links      int
	mismatched int
}

func (r countResult) total() int {
	return r.files + r.dirs + r.links
}

func (r countResult) print(cmd *cobra.Command, checked bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Total entries: %s (files %s, directories %s, links %s)\n",
		humanize.Comma(int64(r.total())), humanize.Comma(int64(r.files)),
		humanize.Comma(int64(r.dirs)), humanize.Comma(int64(r.links)))
	if checked {
		fmt.Fprintf(out, "Wrong owner: %s\n", humanize.Comma(int64(r.mismatched)))
	}
}

func runCount(path string, owner *ownerFilter, showProgress bool) (countResult, error) {
	var res countResult
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			res.dirs++
		case d.Type()&fs.ModeSymlink != 0:
			res.links++
		default:
			res.files++
		}

		if owner != nil {
			info, err := d.Info()
			if err != nil {
				return err
			}
			st, ok := info.Sys().(*syscall.Stat_t)
			if !ok {
				return fmt.Errorf("%s: no ownership information", p)
			}
			if st.Uid != owner.uid || st.Gid != owner.gid {
				res.mismatched++
				logger.Debug("%s is owned by %d:%d", p, st.Uid, st.Gid)
			}
		}

		if showProgress && res.total()%10000 == 0 {
			logger.Info("Progress: %s entries counted", humanize.Comma(int64(res.total())))
		}
		return nil
	})
	return res, err
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/taigrr/colorhash"
	"github.com/tigerand/mchown/internal/logger"
)

// NewSeedCmd creates and returns the seed subcommand.
// It generates a randomized tree of small files to benchmark mchown on.
func NewSeedCmd() *cobra.Command {
	var opts seedOptions

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate a test tree with randomized directory structure",
		Long: `Generate a directory tree full of small files for exercising mchown.

Each file holds a single UUID line. The file's directory is picked from a
color hash of its content, fanout directories per level, depth levels deep,
so the files spread evenly but unpredictably over the tree. Every tenth
file also gets a symbolic link next to it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runSeed(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s files, %s links in %s directories\n",
				humanize.Comma(int64(res.files)), humanize.Comma(int64(res.links)), humanize.Comma(int64(res.dirs)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Path to output directory (required)")
	cmd.Flags().IntVarP(&opts.fileCount, "count", "c", 10000, "Number of files to generate")
	cmd.Flags().IntVarP(&opts.fanout, "fanout", "f", 16, "Directories per level")
	cmd.Flags().IntVar(&opts.depth, "depth", 3, "Directory levels below the output directory")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")

	cmd.MarkFlagRequired("output")

	return cmd
}

type seedOptions struct {
	outputPath string
	fileCount  int
	fanout     int
	depth      int
	verbose    bool
}

type seedResult struct {
	files int
	links int
	dirs  int
}

// seedDir places content in the tree by its color hash.
func seedDir(root, content string, fanout, depth int) string {
	h := uint64(colorhash.HashString(content))
	parts := make([]string, 0, depth+1)
	parts = append(parts, root)
	for range depth {
		parts = append(parts, fmt.Sprintf("%03d", h%uint64(fanout)))
		h /= uint64(fanout)
	}
	return filepath.Join(parts...)
}

func runSeed(opts seedOptions) (seedResult, error) {
	var res seedResult
	if opts.outputPath == "" {
		return res, fmt.Errorf("output directory is required")
	}
	if opts.fileCount < 0 || opts.fanout < 1 || opts.depth < 0 {
		return res, fmt.Errorf("count, fanout and depth must not be negative and fanout must be at least 1")
	}

	if opts.verbose {
		logger.Info("Generating %d test files in %s", opts.fileCount, opts.outputPath)
	}
	if err := os.MkdirAll(opts.outputPath, 0o755); err != nil {
		return res, fmt.Errorf("failed to create output directory: %w", err)
	}

	dirs := make(map[string]bool)
	for res.files < opts.fileCount {
		id := uuid.New()
		content := id.String()
		dir := seedDir(opts.outputPath, content, opts.fanout, opts.depth)

		if !dirs[dir] {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return res, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
			dirs[dir] = true
		}

		name := fmt.Sprintf("%x.txt", id[:4])
		path := filepath.Join(dir, name)
		if _, err := os.Lstat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
			return res, fmt.Errorf("failed to write file %s: %w", path, err)
		}
		res.files++

		if res.files%10 == 0 {
			if err := os.Symlink(name, path+".lnk"); err != nil {
				logger.Warn("Failed to create link for %s: %v", path, err)
			} else {
				res.links++
			}
		}

		if opts.verbose && res.files%1000 == 0 {
			logger.Info("Created %d/%d files...", res.files, opts.fileCount)
		}
	}

	res.dirs = countSeedDirs(opts.outputPath, dirs)
	return res, nil
}

// countSeedDirs counts the leaf directories and every distinct parent up to
// root.
func countSeedDirs(root string, leaves map[string]bool) int {
	all := make(map[string]bool)
	for dir := range leaves {
		for d := dir; d != root && !all[d]; d = filepath.Dir(d) {
			all[d] = true
		}
	}
	return len(all)
}

// Package download fetches LAION parquet shards from the Hugging Face Hub
// and converts each into a webdataset archive with an external tool.
package download

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/fitbench/fitbench/internal/pkg/errors"
)

const shardSuffix = "-cad4a140-cebd-46fa-b874-e8968f93e32e-c000.snappy.parquet"

// ShardFilename returns the parquet file name of shard i.
func ShardFilename(i int) string {
	return fmt.Sprintf("part-%05d%s", i, shardSuffix)
}

// Profile captures the differences between the two download variants.
type Profile struct {
	Name string
	// SkipExisting keeps shards already on disk instead of re-downloading.
	SkipExisting bool
	// PerShardOutput writes each shard to its own part_NNNNN folder.
	PerShardOutput bool
	ImageSize      int
	EnableWandb    bool
}

// Profiles lists the known download profiles.
var Profiles = map[string]Profile{
	"sharded": {
		Name:           "sharded",
		PerShardOutput: true,
		ImageSize:      384,
		EnableWandb:    true,
	},
	"incremental": {
		Name:         "incremental",
		SkipExisting: true,
		ImageSize:    512,
	},
}

// LookupProfile returns the named profile.
func LookupProfile(name string) (Profile, error) {
	p, ok := Profiles[name]
	if !ok {
		return Profile{}, errors.ValidationError(fmt.Sprintf("unknown download profile: %s (must be sharded or incremental)", name))
	}
	return p, nil
}

// OutputFolder returns where shard i is converted to.
func (p Profile) OutputFolder(root string, i int) string {
	if p.PerShardOutput {
		return filepath.Join(root, "data", fmt.Sprintf("part_%05d", i))
	}
	return filepath.Join(root, "data")
}

// ConversionOptions are the worker counts handed to the conversion tool.
type ConversionOptions struct {
	ProcessesCount int
	ThreadCount    int
}

// ConversionArgs returns the conversion tool arguments for one shard.
func (p Profile) ConversionArgs(shardPath, outputFolder string, opts ConversionOptions) []string {
	args := []string{
		"--url_list", shardPath,
		"--input_format", "parquet",
		"--url_col", "URL",
		"--caption_col", "TEXT",
		"--output_format", "webdataset",
		"--output_folder", outputFolder,
		"--processes_count", strconv.Itoa(opts.ProcessesCount),
		"--thread_count", strconv.Itoa(opts.ThreadCount),
		"--image_size", strconv.Itoa(p.ImageSize),
		"--resize_only_if_bigger", "True",
		"--resize_mode", "keep_ratio",
		"--skip_reencode", "True",
		"--save_additional_columns", `["similarity","hash","punsafe","pwatermark","aesthetic"]`,
	}
	if p.EnableWandb {
		args = append(args, "--enable_wandb", "True")
	}
	return args
}

// Package loader bulk-loads (key, value) records from CSV into a tree,
// adapted from the teacher's util/loader package (SPEC_FULL.md §1.1). It is
// an external collaborator over the core's public Put operation, never
// imported by internal/btree itself.
package loader

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/pagedtree/pagedtree/internal/btree"
	"github.com/pagedtree/pagedtree/internal/page"
)

// Result summarizes one LoadCSV run.
type Result struct {
	EntriesProcessed int
	EntriesInserted  int
	Errors           []string
	StagingID        string
}

// LoadCSV reads "key,value" lines from csvPath and Puts each into tree.
// Blank lines and lines starting with "#" are skipped. Per-line failures are
// collected in Result.Errors rather than aborting the whole load. StagingID
// is a random identifier attached to every log line for this run, so
// concurrent loads against different trees can be told apart in the logs.
func LoadCSV(tree *btree.Tree, csvPath string, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	result := &Result{StagingID: uuid.NewString()}
	log = log.With(zap.String("staging_id", result.StagingID), zap.String("csv_path", csvPath))

	file, err := os.Open(csvPath)
	if err != nil {
		return result, errors.Wrapf(err, "loader: open %s", csvPath)
	}
	defer file.Close()

	log.Info("loader: starting CSV load")
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		result.EntriesProcessed++

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: invalid format (expected key,value): %q", lineNum, line))
			continue
		}

		key, err := parseField(parts[0])
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: invalid key: %v", lineNum, err))
			continue
		}
		value, err := parseField(parts[1])
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: invalid value: %v", lineNum, err))
			continue
		}

		if err := tree.Put(page.Key(key), page.Value(value)); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: put failed for key %d: %v", lineNum, key, err))
			continue
		}
		result.EntriesInserted++
	}

	if scanErr := scanner.Err(); scanErr != nil {
		return result, errors.Wrapf(scanErr, "loader: reading %s", csvPath)
	}

	log.Info("loader: finished CSV load",
		zap.Int("processed", result.EntriesProcessed),
		zap.Int("inserted", result.EntriesInserted),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func parseField(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

package planfile

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/example/tablekeeper/internal/persistence/sqlite/migration"
)

// stepFilePattern matches {version}_{description}.{pre|tx|post}.sql
var stepFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.(pre|tx|post)\.sql$`)

const (
	descriptionDirective = "-- Description:"
	strategyDirective    = "-- Strategy:"
)

type stepFiles struct {
	step  migration.Step
	files map[string]string // phase -> file name
}

// LoadSteps scans dir for step files and groups them by version. Files of
// one version share the description of its first file; a "-- Strategy:"
// header in any of them sets the step's strategy. Non-SQL files are ignored.
func LoadSteps(dir string) ([]migration.Step, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, NewFileSystemError(dir, "scan directory", fmt.Errorf("step directory does not exist"))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, NewFileSystemError(dir, "read directory", err)
	}

	byVersion := make(map[int]*stepFiles)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, description, phase, err := parseFileName(entry.Name())
		if err != nil {
			return nil, err
		}

		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, NewFileSystemError(path, "read file", err)
		}

		group, ok := byVersion[version]
		if !ok {
			group = &stepFiles{
				step:  migration.Step{To: version, Description: strings.ReplaceAll(description, "_", " ")},
				files: make(map[string]string),
			}
			byVersion[version] = group
		}
		if existing, dup := group.files[phase]; dup {
			return nil, fmt.Errorf("%w: version %d has two %s files: %s and %s",
				ErrInvalidStepFile, version, phase, existing, entry.Name())
		}
		group.files[phase] = entry.Name()

		if err := group.apply(phase, string(content)); err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
	}

	steps := make([]migration.Step, 0, len(byVersion))
	for _, group := range byVersion {
		group.step.Checksum = Checksum(group.step.Pre, group.step.Tx, group.step.Post)
		steps = append(steps, group.step)
	}
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].To < steps[j].To
	})

	return steps, nil
}

func parseFileName(name string) (version int, description, phase string, err error) {
	matches := stepFilePattern.FindStringSubmatch(name)
	if matches == nil {
		return 0, "", "", fmt.Errorf("%w: filename '%s' does not match pattern '{version}_{description}.{pre|tx|post}.sql'",
			ErrInvalidStepFile, name)
	}

	version, err = strconv.Atoi(matches[1])
	if err != nil || version < 1 {
		return 0, "", "", fmt.Errorf("%w: version '%s' in filename '%s' is not a positive number",
			ErrInvalidStepFile, matches[1], name)
	}

	return version, matches[2], matches[3], nil
}

func (g *stepFiles) apply(phase, content string) error {
	if description := headerValue(content, descriptionDirective); description != "" {
		g.step.Description = description
	}
	if strategy := headerValue(content, strategyDirective); strategy != "" {
		g.step.Strategy = migration.Strategy(strings.ToLower(strategy))
	}

	statements, err := SplitStatements(content)
	if err != nil {
		return err
	}
	if len(statements) == 0 && g.step.Strategy == "" {
		return fmt.Errorf("%w: no SQL statements found after removing comments", ErrInvalidStepFile)
	}

	switch phase {
	case "pre":
		g.step.Pre = statements
	case "tx":
		g.step.Tx = statements
	case "post":
		g.step.Post = statements
	}
	return nil
}

// headerValue returns the value of a directive in the leading comment block.
func headerValue(content, directive string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			break
		}
		if strings.HasPrefix(line, directive) {
			return strings.TrimSpace(strings.TrimPrefix(line, directive))
		}
	}
	return ""
}

// Checksum fingerprints a step's statements so logs can tell two revisions
// of the same version apart.
func Checksum(pre, tx, post []string) string {
	hash, _ := blake2b.New256(nil)
	for _, phase := range [][]string{pre, tx, post} {
		for _, stmt := range phase {
			hash.Write([]byte(strings.TrimSpace(stmt)))
			hash.Write([]byte{0})
		}
		hash.Write([]byte{0xff})
	}
	return hex.EncodeToString(hash.Sum(nil))
}

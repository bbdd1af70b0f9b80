package content

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads every *.yaml / *.yml course document under rootDir and builds a
// Catalog. Documents that fail schema validation are skipped with a warning;
// duplicate ids across documents are an error.
func Load(rootDir string) (*Catalog, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}

	var courses []Course
	err = filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(path) {
			return nil
		}

		course, ok, err := loadCourse(v, path)
		if err != nil {
			return err
		}
		if ok {
			courses = append(courses, course)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}

	catalog, err := New(courses...)
	if err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}

	slog.Info("content loaded", "courses", catalog.CourseCount(), "lessons", len(catalog.lessons), "quizzes", len(catalog.quizzes))
	return catalog, nil
}

func loadCourse(v *Validator, path string) (Course, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Course{}, false, err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping unparsable course YAML", "path", path, "error", err)
		return Course{}, false, nil
	}
	if doc == nil {
		return Course{}, false, nil // empty file
	}
	if err := v.Validate(doc); err != nil {
		slog.Warn("skipping invalid course document", "path", path, "error", err)
		return Course{}, false, nil
	}

	var course Course
	if err := yaml.Unmarshal(data, &course); err != nil {
		slog.Warn("skipping unparsable course YAML", "path", path, "error", err)
		return Course{}, false, nil
	}
	return course, true, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

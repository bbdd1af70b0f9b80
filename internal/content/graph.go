// Package content holds the read-only course graph: courses, their ordered
// lessons, and quizzes with answer keys and reward schedules. The graph is
// built once and never mutated, so readers need no locking.
package content

import (
	"fmt"
	"sort"
)

// Graph is the read view of authored content used by the learning core.
type Graph interface {
	Course(id string) (Course, bool)
	Lesson(id string) (Lesson, bool)
	Quiz(id string) (Quiz, bool)
	Courses() []Course
	CourseCount() int
	LessonCount(courseID string) int
}

// Catalog is an immutable in-memory Graph.
type Catalog struct {
	courses map[string]Course
	lessons map[string]Lesson
	quizzes map[string]Quiz
	order   []string
}

var _ Graph = (*Catalog)(nil)

// New indexes courses into a Catalog. Lesson and quiz ids must be unique
// across the whole catalog.
func New(courses ...Course) (*Catalog, error) {
	c := &Catalog{
		courses: make(map[string]Course, len(courses)),
		lessons: make(map[string]Lesson),
		quizzes: make(map[string]Quiz),
	}

	for _, course := range courses {
		if err := c.add(course); err != nil {
			return nil, err
		}
	}
	sort.Strings(c.order)
	return c, nil
}

func (c *Catalog) add(course Course) error {
	if course.ID == "" {
		return fmt.Errorf("course id is required")
	}
	if _, dup := c.courses[course.ID]; dup {
		return fmt.Errorf("duplicate course id %q", course.ID)
	}

	lessons := make([]Lesson, len(course.Lessons))
	for i, lesson := range course.Lessons {
		if lesson.ID == "" {
			return fmt.Errorf("course %s: lesson %d has no id", course.ID, i+1)
		}
		if _, dup := c.lessons[lesson.ID]; dup {
			return fmt.Errorf("course %s: duplicate lesson id %q", course.ID, lesson.ID)
		}
		lesson.CourseID = course.ID
		lesson.Order = i + 1
		lessons[i] = lesson
		c.lessons[lesson.ID] = lesson
	}
	course.Lessons = lessons

	quizzes := make([]Quiz, len(course.Quizzes))
	for i, quiz := range course.Quizzes {
		if quiz.ID == "" {
			return fmt.Errorf("course %s: quiz %d has no id", course.ID, i+1)
		}
		if _, dup := c.quizzes[quiz.ID]; dup {
			return fmt.Errorf("course %s: duplicate quiz id %q", course.ID, quiz.ID)
		}
		if err := checkQuiz(quiz); err != nil {
			return fmt.Errorf("course %s: %w", course.ID, err)
		}
		quiz.CourseID = course.ID
		quizzes[i] = quiz
		c.quizzes[quiz.ID] = quiz
	}
	course.Quizzes = quizzes

	c.courses[course.ID] = course
	c.order = append(c.order, course.ID)
	return nil
}

func checkQuiz(q Quiz) error {
	seen := make(map[string]bool, len(q.Questions))
	for _, question := range q.Questions {
		if seen[question.ID] {
			return fmt.Errorf("quiz %s: duplicate question id %q", q.ID, question.ID)
		}
		seen[question.ID] = true

		for _, id := range question.Correct {
			if !question.HasOption(id) {
				return fmt.Errorf("quiz %s question %s: correct option %q is not an option", q.ID, question.ID, id)
			}
		}
	}
	for key, points := range q.Rewards {
		if points < 0 {
			return fmt.Errorf("quiz %s: negative reward for %s", q.ID, key)
		}
	}
	return nil
}

func (c *Catalog) Course(id string) (Course, bool) {
	course, ok := c.courses[id]
	return course, ok
}

func (c *Catalog) Lesson(id string) (Lesson, bool) {
	lesson, ok := c.lessons[id]
	return lesson, ok
}

func (c *Catalog) Quiz(id string) (Quiz, bool) {
	quiz, ok := c.quizzes[id]
	return quiz, ok
}

// Courses returns all courses ordered by id.
func (c *Catalog) Courses() []Course {
	out := make([]Course, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.courses[id])
	}
	return out
}

func (c *Catalog) CourseCount() int {
	return len(c.courses)
}

// LessonCount returns the number of lessons in a course, 0 if unknown.
func (c *Catalog) LessonCount(courseID string) int {
	return len(c.courses[courseID].Lessons)
}

package content

import (
	"strconv"
)

// Course is an authored course. Lessons keep authoring order.
type Course struct {
	ID      string   `yaml:"id"`
	Title   string   `yaml:"title"`
	Closed  bool     `yaml:"closed"`
	Lessons []Lesson `yaml:"lessons"`
	Quizzes []Quiz   `yaml:"quizzes"`
	Reviews []Review `yaml:"reviews"`
}

// Open reports whether the course accepts enrollments.
func (c Course) Open() bool {
	return !c.Closed
}

// TotalLessons is the denominator of enrollment progress.
func (c Course) TotalLessons() int {
	return len(c.Lessons)
}

// AverageRating is the mean review rating, 0 when there are no reviews.
func (c Course) AverageRating() float64 {
	if len(c.Reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range c.Reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(c.Reviews))
}

// Lesson belongs to exactly one course.
type Lesson struct {
	ID          string   `yaml:"id"`
	CourseID    string   `yaml:"-"`
	Title       string   `yaml:"title"`
	Order       int      `yaml:"-"`
	Attachments []string `yaml:"attachments"`
}

// Quiz carries its questions and the reward schedule keyed "attempt{N}".
type Quiz struct {
	ID        string         `yaml:"id"`
	CourseID  string         `yaml:"-"`
	Title     string         `yaml:"title"`
	Questions []Question     `yaml:"questions"`
	Rewards   map[string]int `yaml:"rewards"`
}

// RewardFor returns the points scheduled for the given attempt ordinal, or 0.
func (q Quiz) RewardFor(attempt int) int {
	return q.Rewards["attempt"+strconv.Itoa(attempt)]
}

// Question looks up a question of the quiz by id.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// Question is one multiple-choice item. Correct holds the ids of the
// options that count as a right answer.
type Question struct {
	ID      string   `yaml:"id"`
	Text    string   `yaml:"text"`
	Options []Option `yaml:"options"`
	Correct []string `yaml:"correct"`
}

// HasOption reports whether optionID is one of the question's options.
func (q Question) HasOption(optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// IsCorrect reports whether optionID is a correct answer.
func (q Question) IsCorrect(optionID string) bool {
	for _, id := range q.Correct {
		if id == optionID {
			return true
		}
	}
	return false
}

// Option is an answer choice.
type Option struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}

// Review is a learner's rating of a course.
type Review struct {
	LearnerID string `yaml:"learner_id"`
	Rating    int    `yaml:"rating"`
}

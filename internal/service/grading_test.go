package service

import (
	"testing"

	"skillset_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func q(id uint, typ model.QuestionType, correct ...string) model.Question {
	qq := model.Question{Type: typ, Correct: datatypes.NewJSONType(correct)}
	qq.ID = id
	return qq
}

func scoringSet() []model.Question {
	return []model.Question{
		q(1, model.QuestionSingleChoice, "b"),
		q(2, model.QuestionSingleChoice, "b"),
		q(3, model.QuestionMultiChoice, "a", "c"),
		q(4, model.QuestionFreeText, "42"),
	}
}

func TestGradeScoring(t *testing.T) {
	qs := scoringSet()

	all := model.AnswerSet{"1": {"b"}, "2": {"b"}, "3": {"c", "a"}, "4": {" 42 "}}
	res := Grade(qs, all)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, 4, res.Correct)

	none := model.AnswerSet{"1": {"a"}, "2": {"c"}, "3": {"a"}, "4": {"41"}}
	assert.Equal(t, 0, Grade(qs, none).Score)

	half := model.AnswerSet{"1": {"b"}, "2": {"a"}, "3": {"a", "c"}, "4": {"forty-two"}}
	assert.Equal(t, 50, Grade(qs, half).Score)
}

func TestGradeRules(t *testing.T) {
	tests := []struct {
		name  string
		q     model.Question
		given []string
		want  bool
	}{
		{"single exact", q(1, model.QuestionSingleChoice, "b"), []string{"b"}, true},
		{"single with extra selection", q(1, model.QuestionSingleChoice, "b"), []string{"b", "a"}, false},
		{"true false", q(1, model.QuestionTrueFalse, "true"), []string{"true"}, true},
		{"checkpoint video", q(1, model.QuestionCheckpointVideo, "a"), []string{"a"}, true},
		{"image single", q(1, model.QuestionImageSingleChoice, "c"), []string{"b"}, false},
		{"multi partial", q(1, model.QuestionMultiChoice, "a", "c"), []string{"a"}, false},
		{"multi superset", q(1, model.QuestionMultiChoice, "a", "c"), []string{"a", "b", "c"}, false},
		{"multi duplicates", q(1, model.QuestionMultiChoice, "a", "c"), []string{"c", "a", "a"}, true},
		{"text case sensitive", q(1, model.QuestionFreeText, "Paris"), []string{"paris"}, false},
		{"text trimmed", q(1, model.QuestionFreeText, "Paris"), []string{"  Paris\n"}, true},
		{"numeric exact string", q(1, model.QuestionNumeric, "3.5"), []string{"3.50"}, false},
		{"no answer", q(1, model.QuestionSingleChoice, "b"), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Grade([]model.Question{tt.q}, model.AnswerSet{"1": tt.given})
			assert.Equal(t, tt.want, res.Items[0].Correct)
		})
	}
}

func TestGradeIgnoresUnknownAnswersAndUngradedQuestions(t *testing.T) {
	qs := []model.Question{q(1, model.QuestionSingleChoice, "b"), q(2, model.QuestionFreeText)}
	res := Grade(qs, model.AnswerSet{"1": {"b"}, "2": {"anything"}, "99": {"b"}})

	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Correct)
	assert.Equal(t, 50, res.Score)
	assert.False(t, res.Items[1].Graded)
	assert.Equal(t, []string{"anything"}, res.Answers["2"])
	_, kept := res.Answers["99"]
	assert.False(t, kept)
}

func TestScoreWithoutQuestionsIsZero(t *testing.T) {
	assert.Equal(t, 0, Grade(nil, model.AnswerSet{"1": {"a"}}).Score)
	assert.Equal(t, 33, Score(1, 3))
	assert.Equal(t, 67, Score(2, 3))
}

func TestClampElapsed(t *testing.T) {
	assert.Equal(t, 600, ClampElapsed(700, 600, 5))
	assert.Equal(t, 605, ClampElapsed(605, 600, 5))
	assert.Equal(t, 600, ClampElapsed(606, 600, 5))
	assert.Equal(t, 120, ClampElapsed(120, 600, 5))
	assert.Equal(t, 0, ClampElapsed(-3, 600, 5))
}

func TestParseAnswers(t *testing.T) {
	got := ParseAnswers(map[string][]string{"q_12": {"a"}, "7": {"b"}, "bogus": {"c"}, "q_0": {"d"}})
	assert.Equal(t, model.AnswerSet{"12": {"a"}, "7": {"b"}}, got)

	// 同一题目两种写法：不带前缀的键优先，结果与遍历顺序无关
	for i := 0; i < 20; i++ {
		got = ParseAnswers(map[string][]string{"q_12": {"a"}, "12": {"b"}, "q_012": {"c"}})
		assert.Equal(t, model.AnswerSet{"12": {"b"}}, got)
	}
	got = ParseAnswers(map[string][]string{"q_12": {"a"}, "q_012": {"c"}})
	assert.Equal(t, model.AnswerSet{"12": {"c"}}, got)
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestWeekGrantRoundTrip(t *testing.T) {
	v, err := WeekGrant{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = GrantFor("2026-W06").Value()
	require.NoError(t, err)
	assert.Equal(t, "2026-W06", v)

	var g WeekGrant
	require.NoError(t, g.Scan([]byte("2026-W06")))
	assert.True(t, g.Matches("2026-W06"))
	assert.False(t, g.Matches("2026-W07"))

	require.NoError(t, g.Scan(nil))
	assert.False(t, g.Present)
	assert.False(t, g.Matches(""))

	assert.Error(t, g.Scan(42))
}

func TestSkillDefaults(t *testing.T) {
	s := Skill{}
	assert.Equal(t, DefaultPassThreshold, s.EffectivePassThreshold())
	assert.Equal(t, DefaultTimeLimitMin*60, s.EffectiveTimeLimitSeconds())
	assert.True(t, s.Passed(60))
	assert.False(t, s.Passed(59))

	s.PassThreshold = 80
	assert.False(t, s.Passed(79))
}

func TestQuestionForStudentHidesAnswers(t *testing.T) {
	q := Question{
		Type:    QuestionSingleChoice,
		Options: datatypes.NewJSONType([]Choice{{ID: "a"}, {ID: "b"}}),
		Correct: datatypes.NewJSONType([]string{"b"}),
		Status:  QuestionApproved,
	}
	live := q.ForStudent()
	assert.Empty(t, live.CorrectAnswers())
	assert.Len(t, live.Choices(), 2)
	assert.Equal(t, []string{"b"}, q.CorrectAnswers())
}

func TestDisplayNameFallsBack(t *testing.T) {
	u := User{NameAr: "سارة"}
	assert.Equal(t, "سارة", u.DisplayName(LangEN))
	u.NameEn = "Sara"
	assert.Equal(t, "Sara", u.DisplayName(LangEN))
	assert.Equal(t, "سارة", u.DisplayName(LangAR))
}

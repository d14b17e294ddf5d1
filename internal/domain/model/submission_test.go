package model_test

import (
	"strings"
	"testing"

	"recruit_exec/internal/domain/model"

	"github.com/stretchr/testify/assert"
)

func TestAggregate(t *testing.T) {
	c := func(s model.TaskStatus) model.TaskCorrelation { return model.TaskCorrelation{Status: s} }

	cases := []struct {
		name string
		in   []model.TaskCorrelation
		want model.AggregateStatus
	}{
		{"empty is vacuously passed", nil, model.AggregatePassed},
		{"all succeeded", []model.TaskCorrelation{c(model.TaskSucceeded), c(model.TaskSucceeded)}, model.AggregatePassed},
		{"one pending", []model.TaskCorrelation{c(model.TaskFailedMismatch), c(model.TaskPending)}, model.AggregatePending},
		{"resolved with failure", []model.TaskCorrelation{c(model.TaskSucceeded), c(model.TaskFailedTimeout)}, model.AggregateFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, model.Aggregate(tc.in))
		})
	}
}

func TestRunnerLanguage(t *testing.T) {
	lang, ok := model.RunnerLanguage(" C++ ")
	assert.True(t, ok)
	assert.Equal(t, "Cpp", lang)

	_, ok = model.RunnerLanguage("cobol")
	assert.False(t, ok)
}

func TestTrimOutput(t *testing.T) {
	assert.Equal(t, "3", model.TrimOutput("3\n"))
	assert.Equal(t, "a\nb", model.TrimOutput("a  \r\nb\t\n\n\n"))
	assert.Equal(t, "", model.TrimOutput(" \n"))

	long := model.TrimOutput(strings.Repeat("x", model.MaxStoredOutput+10))
	assert.True(t, strings.HasSuffix(long, "…"))
	assert.Len(t, long, model.MaxStoredOutput+len("…"))
}

package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/haken/internal/model"
)

func TestCategoryTable_Complete(t *testing.T) {
	valid := map[model.Conclusion]bool{
		model.ConclusionAccepted:           true,
		model.ConclusionRejected:           true,
		model.ConclusionSelected:           true,
		model.ConclusionDisconnected:       true,
		model.ConclusionWaitingForApproval: true,
	}
	for _, c := range model.Categories() {
		t.Run(string(c), func(t *testing.T) {
			assert.True(t, c.Valid())
			assert.True(t, valid[c.Conclusion()], "unexpected conclusion %q", c.Conclusion())
			params := make([]string, c.ParamCount())
			for i := range params {
				params[i] = "p"
			}
			key, err := c.Key(params...)
			require.NoError(t, err)
			assert.NotEmpty(t, key)
			assert.NotEmpty(t, c.Message(params...))
			assert.NotContains(t, c.Message(params...), "%!", "message template must consume every parameter")
		})
	}
}

func TestCategoryKey_PlainCategoryIsName(t *testing.T) {
	key, err := model.CategoryMissingAllSelectors.Key()
	require.NoError(t, err)
	assert.Equal(t, "MISSING_ALL_SELECTORS", key)
	assert.Equal(t, "Missing all selectors", model.CategoryMissingAllSelectors.Message())
	assert.Equal(t, model.ConclusionRejected, model.CategoryMissingAllSelectors.Conclusion())
}

func TestCategoryKey_ParametersDistinguishEntries(t *testing.T) {
	a, err := model.CategoryMissingSelector.Key("gpu", "task")
	require.NoError(t, err)
	b, err := model.CategoryMissingSelector.Key("gpu", "step")
	require.NoError(t, err)
	c, err := model.CategoryMissingSelector.Key("linux", "task")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "Missing selector gpu from task", model.CategoryMissingSelector.Message("gpu", "task"))
}

func TestCategoryKey_SeparatorInParameters(t *testing.T) {
	a, err := model.CategoryMissingSelector.Key("region:us", "east")
	require.NoError(t, err)
	b, err := model.CategoryMissingSelector.Key("region", "us:east")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, "MISSING_SELECTOR:region%3Aus:east", a)
	assert.Equal(t, "MISSING_SELECTOR:region:us%3Aeast", b)

	// The escape character is itself escaped, so a literal "%3A" stays distinct.
	c, err := model.CategoryMissingSelector.Key("region%3Aus", "east")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	// Parameters without the separator keep their plain form.
	plain, err := model.CategoryMissingSelector.Key("gpu", "task")
	require.NoError(t, err)
	assert.Equal(t, "MISSING_SELECTOR:gpu:task", plain)
}

func TestCategoryKey_WrongParamCount(t *testing.T) {
	_, err := model.CategoryExcludeScopeMatched.Key()
	require.Error(t, err)

	_, err = model.CategoryTaskAssigned.Key("extra")
	require.Error(t, err)
}

func TestCategoryKey_Unknown(t *testing.T) {
	unknown := model.Category("NOT_A_CATEGORY")
	assert.False(t, unknown.Valid())
	_, err := unknown.Key()
	require.Error(t, err)
}

func TestTaskIsNG(t *testing.T) {
	assert.True(t, model.Task{SetupAbstractions: map[string]string{"ng": "true"}}.IsNG())
	assert.False(t, model.Task{SetupAbstractions: map[string]string{"ng": "false"}}.IsNG())
	assert.False(t, model.Task{}.IsNG())
}

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, model.RoleAtLeast(model.RoleAdmin, model.RoleScheduler))
	assert.True(t, model.RoleAtLeast(model.RoleScheduler, model.RoleOperator))
	assert.False(t, model.RoleAtLeast(model.RoleOperator, model.RoleScheduler))
	assert.False(t, model.RoleAtLeast(model.Role("unknown"), model.RoleOperator))
	assert.False(t, model.ValidRole(""))
}

func TestRecordSelectionRequest_Validate(t *testing.T) {
	ok := model.RecordSelectionRequest{
		Task: model.Task{ID: "task-1"},
		Decisions: []model.DecisionInput{
			{Category: model.CategoryMissingSelector, Params: []string{"gpu", "task"}, DelegateIDs: []string{"d1"}},
			{Category: model.CategoryTaskAssigned, DelegateIDs: []string{"d2"}},
		},
	}
	require.NoError(t, ok.Validate())

	tests := []struct {
		name string
		req  model.RecordSelectionRequest
	}{
		{"missing task id", model.RecordSelectionRequest{}},
		{"unknown category", model.RecordSelectionRequest{
			Task:      model.Task{ID: "t"},
			Decisions: []model.DecisionInput{{Category: "BOGUS"}},
		}},
		{"wrong params", model.RecordSelectionRequest{
			Task:      model.Task{ID: "t"},
			Decisions: []model.DecisionInput{{Category: model.CategoryOwnerNotMatched}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.req.Validate())
		})
	}
}

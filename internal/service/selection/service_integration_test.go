package selection_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/haken/internal/model"
	"github.com/ashita-ai/haken/internal/registry"
	"github.com/ashita-ai/haken/internal/service/selection"
	"github.com/ashita-ai/haken/internal/storage"
	"github.com/ashita-ai/haken/internal/testutil"
)

var (
	testDB    *storage.DB
	testCache *registry.Cache
	testSvc   *selection.Service
)

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	logger := testutil.TestLogger()
	testDB = tc.MustNewTestDB(context.Background(), logger)
	testCache = registry.New(testDB, time.Second)
	testSvc = selection.New(testDB, testCache, storage.DefaultRetryPolicy, logger)

	code := m.Run()

	testCache.Close()
	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func newIDs() (accountID, taskID string) {
	return "acct-" + uuid.NewString()[:8], "task-" + uuid.NewString()[:8]
}

func TestIntegration_ConcurrentSavesConverge(t *testing.T) {
	ctx := context.Background()
	accountID, taskID := newIDs()
	task := &model.Task{ID: taskID, AccountID: accountID, SelectionLogsTrackingEnabled: true}

	const callers = 10
	g, gctx := errgroup.WithContext(ctx)
	for i := range callers {
		g.Go(func() error {
			b := testSvc.CreateBatch(gctx, task)
			b.Log(accountID, model.CategoryNoIncludeScopeMatched,
				fmt.Sprintf("d-%d-a", i), fmt.Sprintf("d-%d-b", i))
			return testSvc.Save(gctx, b)
		})
	}
	require.NoError(t, g.Wait())

	var count int
	err := testDB.Pool().QueryRow(ctx,
		`SELECT count(*) FROM selection_logs WHERE account_id = $1 AND task_id = $2 AND category_key = $3`,
		accountID, taskID, string(model.CategoryNoIncludeScopeMatched),
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rows, err := testSvc.FetchTaskSelectionLogs(ctx, accountID, taskID)
	require.NoError(t, err)
	assert.Len(t, rows, 2*callers)

	want := make([]string, 0, 2*callers)
	for i := range callers {
		want = append(want, fmt.Sprintf("d-%d-a", i), fmt.Sprintf("d-%d-b", i))
	}
	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = r.DelegateID
	}
	assert.ElementsMatch(t, want, got)
}

func TestIntegration_MissingAllSelectorsScenario(t *testing.T) {
	ctx := context.Background()
	accountID, taskID := newIDs()

	b := testSvc.CreateBatch(ctx, &model.Task{ID: taskID, AccountID: accountID, SelectionLogsTrackingEnabled: true})
	b.Log(accountID, model.CategoryMissingAllSelectors, "delegateX")
	b.Log(accountID, model.CategoryMissingAllSelectors, "delegateY")
	require.NoError(t, testSvc.Save(ctx, b))

	logs, err := testDB.GetSelectionLogs(ctx, accountID, taskID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, []string{"delegateX", "delegateY"}, logs[0].DelegateIDs)
	assert.Equal(t, model.ConclusionRejected, logs[0].Conclusion)
	assert.Equal(t, "Missing all selectors", logs[0].Message)

	_, ok, err := testSvc.FetchSelectedDelegateForTask(ctx, accountID, taskID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIntegration_EndToEndNarrative(t *testing.T) {
	ctx := context.Background()
	accountID, taskID := newIDs()

	require.NoError(t, testDB.UpsertDelegateProfile(ctx, model.DelegateProfile{ID: "p1", AccountID: accountID, Name: "primary"}))
	require.NoError(t, testDB.UpsertDelegate(ctx, model.Delegate{
		ID: "d1", AccountID: accountID, Name: "builder-1", HostName: "host-1", Type: "KUBERNETES", ProfileID: "p1",
	}))
	require.NoError(t, testDB.UpsertEntity(ctx, model.NamedEntity{
		Kind: model.EntityApplication, ID: "app-1", AccountID: accountID, Name: "checkout",
	}))

	task := &model.Task{
		ID: taskID, AccountID: accountID, SelectionLogsTrackingEnabled: true,
		SetupAbstractions: map[string]string{
			model.AbstractionAppID:    "app-1",
			model.AbstractionEnvType:  "PROD",
			"infrastructureMappingId": "infra-1",
		},
	}
	b := testSvc.CreateBatch(ctx, task)
	b.Log(accountID, model.CategoryCapabilityMatched, "d1", "d-ghost")
	b.LogProfileScopeNotMatched(accountID, "d-ghost", "p-ghost", []string{"env == prod"})
	b.Log(accountID, model.CategoryTaskAssigned, "d1")
	require.NoError(t, testSvc.Save(ctx, b))

	data, err := testSvc.FetchTaskSelectionLogsData(ctx, accountID, taskID)
	require.NoError(t, err)
	require.Len(t, data.Logs, 4)
	assert.Equal(t, map[string]string{
		model.SetupApplication:     "checkout",
		model.SetupEnvironmentType: "PROD",
		"infrastructureMappingId":  "infra-1",
	}, data.TaskSetupAbstractions)

	assert.Equal(t, "builder-1", data.Logs[0].DelegateName)
	assert.Equal(t, "primary", data.Logs[0].DelegateProfileName)
	assert.Equal(t, "d-ghost", data.Logs[1].DelegateName)
	assert.Empty(t, data.Logs[1].DelegateHostName)
	require.NotNil(t, data.Logs[2].ProfileScopingRulesDetails)
	assert.Equal(t, "p-ghost", data.Logs[2].ProfileScopingRulesDetails.ProfileID)

	selected, ok, err := testSvc.FetchSelectedDelegateForTask(ctx, accountID, taskID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "d1", selected.DelegateID)
	assert.Equal(t, "host-1", selected.DelegateHostName)
}

func TestIntegration_LegacyTaskWithoutMetadata(t *testing.T) {
	ctx := context.Background()
	accountID, taskID := newIDs()

	b := testSvc.CreateBatch(ctx, &model.Task{ID: taskID, AccountID: accountID, SelectionLogsTrackingEnabled: true})
	b.LogDisconnected(accountID, "d1", "d2")
	require.NoError(t, testSvc.Save(ctx, b))

	data, err := testSvc.FetchTaskSelectionLogsData(ctx, accountID, taskID)
	require.NoError(t, err)
	assert.Len(t, data.Logs, 2)
	assert.Nil(t, data.TaskSetupAbstractions)
}

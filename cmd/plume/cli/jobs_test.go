package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plume-cms/plume/jobs"
)

func TestTriggerRejectsUnsupportedJob(t *testing.T) {
	cli, err := NewJobsCLI("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	_, err = cli.Trigger(context.Background(), jobs.TaskTypeSendEmail)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported job")
}

func TestTriggerRequiresClient(t *testing.T) {
	var cli *JobsCLI
	_, err := cli.Trigger(context.Background(), jobs.TaskTypePublishDue)
	require.Error(t, err)
}

func TestInspectQueueRequiresInspector(t *testing.T) {
	cli := &JobsCLI{}
	_, err := cli.InspectQueue(context.Background())
	require.Error(t, err)

	_, err = cli.ListScheduled(context.Background(), 5)
	require.Error(t, err)
}

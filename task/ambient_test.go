package task_test

import (
	"context"
	"testing"

	"github.com/joeycumines/dauphin/diag"
	"github.com/joeycumines/dauphin/task"
	"github.com/stretchr/testify/require"
)

func TestFreeFunctionsOperateOnCurrentAgent(t *testing.T) {
	e := task.NewExecutor()
	var sawWait string

	h := e.Add(context.Background(), func(ctx context.Context, ag *task.Agent) (any, error) {
		if err := task.NamedWait("searching", func() error {
			sawWait = task.Current().Waits()[0]
			return nil
		}); err != nil {
			return nil, err
		}
		return task.Tidy(func() (any, error) { return "done", nil })
	}, task.RunConfig{})

	out, err := h.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "searching", sawWait)
	require.Equal(t, "done", out.Value)
}

func TestFreeFunctionsWithNoAmbientAgentAreFatal(t *testing.T) {
	_, err := task.Tidy(func() (any, error) { return nil, nil })
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, diag.Fatal, derr.Kind)

	err = task.NamedWait("x", func() error { return nil })
	require.Error(t, err)
	require.ErrorAs(t, err, &derr)

	_, err = task.Turnstile(func(context.Context) (any, error) { return nil, nil })
	require.Error(t, err)
	require.ErrorAs(t, err, &derr)
}

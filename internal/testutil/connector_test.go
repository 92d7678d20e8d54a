package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tasksync/internal/connector"
	"github.com/roach88/tasksync/internal/mapper"
	"github.com/roach88/tasksync/internal/taskdata"
)

func TestSpyConnector_RepliesInOrderThenAccepts(t *testing.T) {
	spy := NewSpyConnector().
		Respond(connector.Accepted{Reference: "7"}).
		Script(Reply{Err: errors.New("boom")})
	ctx := context.Background()

	res, err := spy.Post(ctx, mapper.Payload{TaskID: "a"})
	require.NoError(t, err)
	assert.Equal(t, connector.Accepted{Reference: "7"}, res)

	_, err = spy.Post(ctx, mapper.Payload{TaskID: "b"})
	assert.EqualError(t, err, "boom")

	res, err = spy.Post(ctx, mapper.Payload{TaskID: "c"})
	require.NoError(t, err)
	assert.Equal(t, connector.Accepted{Reference: DefaultReference}, res)

	require.Equal(t, 3, spy.PostCount())
	assert.Equal(t, "b", spy.Posts()[1].TaskID)
}

func TestSpyConnector_DropScript(t *testing.T) {
	spy := NewSpyConnector().Respond(connector.Accepted{Reference: "7"})
	spy.DropScript()

	res, err := spy.Post(context.Background(), mapper.Payload{})
	require.NoError(t, err)
	assert.Equal(t, connector.Accepted{Reference: DefaultReference}, res)
}

func TestSpyConnector_BlockHonoursContext(t *testing.T) {
	spy := NewSpyConnector()
	release := spy.Block()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := spy.Post(ctx, mapper.Payload{})
		done <- err
	}()

	<-spy.Entered()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSpyConnector_FetchTaskClones(t *testing.T) {
	tree := taskdata.NewTree()
	require.NoError(t, tree.Add(taskdata.Attribute{ID: "token", Values: []string{"t1"}}))
	spy := NewSpyConnector().WithTask("42", tree)

	got, err := spy.FetchTask(context.Background(), "42")
	require.NoError(t, err)
	require.NoError(t, got.Set("token", "changed"))

	again, err := spy.FetchTask(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "t1", again.Value("token"))
	assert.Equal(t, []string{"42", "42"}, spy.Fetches())

	_, err = spy.FetchTask(context.Background(), "missing")
	assert.Error(t, err)
}

func TestSpyConnector_FetchMetadataUnscripted(t *testing.T) {
	_, err := NewSpyConnector().FetchMetadata(context.Background())
	assert.Error(t, err)
}

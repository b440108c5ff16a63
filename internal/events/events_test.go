package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	srvtest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metal-toolbox/assetkeeper/internal/model"
	"github.com/metal-toolbox/assetkeeper/types"
)

func TestNATSPublisher(t *testing.T) {
	opts := srvtest.DefaultTestOptions
	opts.Port = -1
	srv := srvtest.RunServer(&opts)

	defer srv.Shutdown()

	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)

	defer conn.Close()

	sub, err := conn.SubscribeSync("test.events.>")
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	asset := model.NewAsset(model.TypeRack, model.SubtypeNA)
	asset.Name = "rack-00000001"

	pub := NewNATSPublisher(conn, "test", logrus.New())
	require.NoError(t, pub.Publish(context.Background(), model.NewEvent(model.OperationCreate, asset)))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "test.events.create", msg.Subject)

	value := &types.EventValue{}
	require.NoError(t, json.Unmarshal(msg.Data, value))
	assert.Equal(t, "create", value.Operation)
	assert.Equal(t, "rack-00000001", value.Asset)
	assert.Equal(t, model.AppName, value.Source)
	assert.Equal(t, types.Version, value.MsgVersion)

	record := &model.Record{}
	require.NoError(t, json.Unmarshal(value.Payload, record))
	assert.Equal(t, model.TypeRack, record.Type)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "assetkeeper.events.delete", Subject(model.AppName, model.OperationDelete))
}

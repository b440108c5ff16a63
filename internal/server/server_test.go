package server

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

	"github.com/metal-toolbox/assetkeeper/internal/asset"
	"github.com/metal-toolbox/assetkeeper/internal/model"
	"github.com/metal-toolbox/assetkeeper/internal/store"
	"github.com/metal-toolbox/assetkeeper/types"
)

const testPrefix = "site-a"

// startService runs a request server over a detached engine holding dc-1 > room-1 > rack-1 > epdu-1.
func startService(t *testing.T) (*nats.Conn, *asset.Engine) {
	t.Helper()

	opts := srvtest.DefaultTestOptions
	opts.Port = -1
	srv := srvtest.RunServer(&opts)

	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)

	repo, err := store.NewMemDB()
	require.NoError(t, err)

	engine, err := asset.NewEngine(repo, nil, logrus.New(), asset.WithDetached(true))
	require.NoError(t, err)

	for _, a := range []struct {
		name    string
		t       model.Type
		subtype string
		parent  string
	}{
		{"dc-1", model.TypeDatacenter, model.SubtypeNA, ""},
		{"room-1", model.TypeRoom, model.SubtypeNA, "dc-1"},
		{"rack-1", model.TypeRack, model.SubtypeNA, "room-1"},
		{"epdu-1", model.TypeDevice, model.SubtypeEPDU, "rack-1"},
	} {
		created := model.NewAsset(a.t, a.subtype)
		created.Name = a.name
		created.Parent = a.parent

		require.NoError(t, engine.Create(context.Background(), created))
	}

	s := New(conn, engine, logrus.New(), WithSubjectPrefix(testPrefix), WithConcurrency(2))
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() {
		s.Stop()
		conn.Close()
		srv.Shutdown()
	})

	return conn, engine
}

func request(t *testing.T, conn *nats.Conn, kind string, payload []byte) *types.Response {
	t.Helper()

	msg, err := conn.Request(Subject(testPrefix, kind), payload, 2*time.Second)
	require.NoError(t, err)

	resp := &types.Response{}
	require.NoError(t, json.Unmarshal(msg.Data, resp))
	assert.Equal(t, types.Version, resp.MsgVersion)

	return resp
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()

	b, err := json.Marshal(v)
	require.NoError(t, err)

	return b
}

func TestGetRequest(t *testing.T) {
	conn, _ := startService(t)

	resp := request(t, conn, RequestGet, mustJSON(t, &types.Request{Names: []string{"rack-1", "epdu-1"}}))
	require.Equal(t, types.StatusOK, resp.Status, resp.Error)

	records := []model.Record{}
	require.NoError(t, json.Unmarshal(resp.Data, &records))
	require.Len(t, records, 2)
	assert.Equal(t, "rack-1", records[0].ID)
	assert.Equal(t, "room-1", records[0].Parent)
	assert.Equal(t, model.TypeDevice, records[1].Type)

	cases := []struct {
		name    string
		payload []byte
		wantErr string
	}{
		{"missing asset", mustJSON(t, &types.Request{Names: []string{"rack-9"}}), model.ErrNotFound.Error()},
		{"no names", mustJSON(t, &types.Request{}), ErrInvalidRequest.Error()},
		{"invalid payload", []byte("{"), ErrInvalidRequest.Error()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := request(t, conn, RequestGet, tc.payload)
			assert.Equal(t, types.StatusError, resp.Status)
			assert.Contains(t, resp.Error, tc.wantErr)
		})
	}
}

func TestListRequest(t *testing.T) {
	conn, _ := startService(t)

	cases := []struct {
		name    string
		payload []byte
		want    []string
	}{
		{"everything", nil, []string{"dc-1", "epdu-1", "rack-1", "room-1"}},
		{"by type", mustJSON(t, &types.Request{Filters: map[string][]string{"type": {"device"}}}), []string{"epdu-1"}},
		{"by parent", mustJSON(t, &types.Request{Filters: map[string][]string{"parent": {"dc-1"}}}), []string{"room-1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := request(t, conn, RequestList, tc.payload)
			require.Equal(t, types.StatusOK, resp.Status, resp.Error)

			names := []string{}
			require.NoError(t, json.Unmarshal(resp.Data, &names))
			assert.ElementsMatch(t, tc.want, names)
		})
	}
}

func TestDeleteRequest(t *testing.T) {
	conn, engine := startService(t)

	resp := request(t, conn, RequestDelete, mustJSON(t, &types.Request{Names: []string{"room-1"}}))
	require.Equal(t, types.StatusOK, resp.Status, resp.Error)

	items := []types.DeleteItem{}
	require.NoError(t, json.Unmarshal(resp.Data, &items))
	require.Len(t, items, 1)
	assert.NotEqual(t, model.DeleteStatusOK, items[0].Status)

	resp = request(t, conn, RequestDelete, mustJSON(t, &types.Request{Names: []string{"room-1"}, Recursive: true}))
	require.Equal(t, types.StatusOK, resp.Status, resp.Error)

	items = []types.DeleteItem{}
	require.NoError(t, json.Unmarshal(resp.Data, &items))

	assert.Equal(t,
		[]types.DeleteItem{
			{Asset: "epdu-1", Status: model.DeleteStatusOK},
			{Asset: "rack-1", Status: model.DeleteStatusOK},
			{Asset: "room-1", Status: model.DeleteStatusOK},
		},
		items,
	)

	names, err := engine.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"dc-1"}, names)
}

func TestStatusRequests(t *testing.T) {
	conn, engine := startService(t)

	payload := mustJSON(t, &types.Request{Names: []string{"epdu-1", "rack-1"}})

	resp := request(t, conn, RequestActivate, payload)
	require.Equal(t, types.StatusOK, resp.Status, resp.Error)

	for _, name := range []string{"epdu-1", "rack-1"} {
		a, err := engine.Load(context.Background(), name, false)
		require.NoError(t, err)
		assert.Equal(t, model.StatusActive, a.Status)
	}

	resp = request(t, conn, RequestDeactivate, payload)
	require.Equal(t, types.StatusOK, resp.Status, resp.Error)

	a, err := engine.Load(context.Background(), "epdu-1", false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNonactive, a.Status)

	resp = request(t, conn, RequestActivate, mustJSON(t, &types.Request{Names: []string{"epdu-9"}}))
	assert.Equal(t, types.StatusError, resp.Status)
}

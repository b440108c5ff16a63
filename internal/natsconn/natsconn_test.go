package natsconn

import (
	"context"
	"testing"
	"time"

	srvtest "github.com/nats-io/nats-server/v2/test"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	opts := srvtest.DefaultTestOptions
	opts.Port = -1
	srv := srvtest.RunServer(&opts)

	defer srv.Shutdown()

	conn, err := Connect(context.Background(), &Params{URL: srv.ClientURL()}, logrus.New())
	require.NoError(t, err)

	defer conn.Close()

	assert.True(t, conn.IsConnected())
}

func TestConnectErrors(t *testing.T) {
	cases := []struct {
		name    string
		params  *Params
		wantErr error
	}{
		{"missing url", &Params{}, ErrNatsParams},
		{
			"unreachable server",
			&Params{URL: "nats://127.0.0.1:1", Attempts: 1, ConnectTimeout: 100 * time.Millisecond},
			ErrNatsConnect,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Connect(context.Background(), tc.params, logrus.New())
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

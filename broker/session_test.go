package broker_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyseaburg/quantum-fox/broker"
	"github.com/rileyseaburg/quantum-fox/broker/brokertest"
)

var creds = broker.Credentials{APIKey: "PKTEST", APISecret: "secret"}

func TestConnect_SelectsEnvironmentURL(t *testing.T) {
	tests := []struct {
		env  broker.Environment
		want string
	}{
		{broker.Paper, "https://paper-api.alpaca.markets"},
		{broker.Live, "https://api.alpaca.markets"},
	}
	for _, tt := range tests {
		t.Run(string(tt.env), func(t *testing.T) {
			fake := brokertest.NewClient()
			s, err := broker.ConnectWith(context.Background(), fake.Dialer(), creds, tt.env)
			require.NoError(t, err)

			require.Len(t, fake.Opts, 1)
			assert.Equal(t, tt.want, fake.Opts[0].BaseURL)
			assert.Equal(t, "PKTEST", fake.Opts[0].APIKey)
			assert.Equal(t, tt.env, s.Environment())
			assert.True(t, s.Equity().Equal(decimal.RequireFromString("1500.25")))
		})
	}
}

func TestConnect_MissingCredentials(t *testing.T) {
	fake := brokertest.NewClient()
	_, err := broker.ConnectWith(context.Background(), fake.Dialer(), broker.Credentials{APIKey: "PK"}, broker.Paper)
	assert.ErrorIs(t, err, broker.ErrMissingCredentials)
	assert.Empty(t, fake.Opts, "no client is built without credentials")
}

func TestConnect_AccountFailure(t *testing.T) {
	fake := brokertest.NewClient()
	fake.AccountErr = errors.New("forbidden")

	s, err := broker.ConnectWith(context.Background(), fake.Dialer(), creds, broker.Paper)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.Contains(t, err.Error(), "forbidden")
}

func TestConnect_UnknownEnvironment(t *testing.T) {
	_, err := broker.ConnectWith(context.Background(), brokertest.NewClient().Dialer(), creds, "sandbox")
	assert.ErrorIs(t, err, broker.ErrUnknownEnvironment)
}

func TestParseEnvironment(t *testing.T) {
	env, err := broker.ParseEnvironment(" LIVE ")
	require.NoError(t, err)
	assert.Equal(t, broker.Live, env)
	assert.Equal(t, "LIVE", env.Label())

	_, err = broker.ParseEnvironment("prod")
	assert.ErrorIs(t, err, broker.ErrUnknownEnvironment)
}

func TestSession_AccountAndPositions(t *testing.T) {
	fake := brokertest.NewClient()
	mv := decimal.RequireFromString("1234.5")
	fake.Positions = []alpaca.Position{
		{Symbol: "AAPL", Qty: decimal.NewFromInt(10), AvgEntryPrice: decimal.RequireFromString("120.1"), MarketValue: &mv},
		{Symbol: "MSFT", Qty: decimal.NewFromInt(1), AvgEntryPrice: decimal.NewFromInt(300)},
	}

	s, err := broker.ConnectWith(context.Background(), fake.Dialer(), creds, broker.Paper)
	require.NoError(t, err)

	acct, err := s.Account()
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", acct.Status)
	assert.True(t, acct.Cash.Equal(decimal.RequireFromString("1000.50")))
	assert.True(t, acct.BuyingPower.Equal(decimal.NewFromInt(2001)))

	positions, err := s.Positions()
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.True(t, positions[0].MarketValue.Equal(mv))
	assert.True(t, positions[1].MarketValue.IsZero(), "missing market value reads as zero")
}

func TestSession_PositionsError(t *testing.T) {
	fake := brokertest.NewClient()
	s, err := broker.ConnectWith(context.Background(), fake.Dialer(), creds, broker.Paper)
	require.NoError(t, err)

	fake.PositionsErr = errors.New("timeout")
	_, err = s.Positions()
	assert.ErrorContains(t, err, "timeout")
}

func TestCredentials_Redacted(t *testing.T) {
	c := broker.Credentials{APIKey: "PKSECRETKEY", APISecret: "topsecret"}
	for _, s := range []string{fmt.Sprint(c), fmt.Sprintf("%v", c), fmt.Sprintf("%+v", c), fmt.Sprintf("%#v", c)} {
		assert.NotContains(t, s, "PKSECRETKEY")
		assert.NotContains(t, s, "topsecret")
	}
}

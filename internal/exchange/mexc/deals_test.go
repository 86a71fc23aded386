package mexc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestDecodeFirstDeal(t *testing.T) {
	frame := AppendDeals(nil, DealsMessage{
		Channel:    "spot@public.aggre.deals.v3.api.pb@100ms@BTCUSDT",
		Symbol:     "BTCUSDT",
		CreateTime: 1700000000000,
		Deals: []Deal{
			{Price: "0.5", Quantity: "10", TradeType: 1, Time: 1700000000000},
			{Price: "0.6", Quantity: "3", TradeType: 2, Time: 1700000000100},
		},
	})

	deal := DecodeFirstDeal(frame)
	require.NotNil(t, deal)
	assert.Equal(t, "0.5", deal.Price)
	assert.Equal(t, "10", deal.Quantity)
	assert.Equal(t, int64(1700000000000), deal.Time)
}

func TestDecodeRoundTrip(t *testing.T) {
	in := DealsMessage{
		Channel:    "spot@public.aggre.deals.v3.api.pb@100ms@ETHUSDT",
		Symbol:     "ETHUSDT",
		CreateTime: 1700000000001,
		SendTime:   1700000000002,
		EventType:  "spot@public.aggre.deals",
		Deals: []Deal{
			{Price: "3021.44", Quantity: "0.0451", TradeType: 1, Time: 1700000000003},
		},
	}

	out, err := DecodeDeals(AppendDeals(nil, in))
	require.NoError(t, err)
	assert.Equal(t, &in, out)
}

func TestDecodePreservesNegativeVarint(t *testing.T) {
	// A negative int64 is wire-encoded as a ten-byte varint; decoding must
	// restore the two's-complement value.
	frame := AppendDeals(nil, DealsMessage{
		Deals: []Deal{{Price: "1", Quantity: "1", TradeType: -1, Time: -42}},
	})

	out, err := DecodeDeals(frame)
	require.NoError(t, err)
	require.Len(t, out.Deals, 1)
	assert.Equal(t, int32(-1), out.Deals[0].TradeType)
	assert.Equal(t, int64(-42), out.Deals[0].Time)
}

func TestDecodeSkipsUnknownTrailingFields(t *testing.T) {
	frame := AppendDeals(nil, DealsMessage{
		Symbol: "BTCUSDT",
		Deals:  []Deal{{Price: "0.5", Quantity: "10", Time: 1700000000000}},
	})

	// Trailing unknown fields of every supported wire type.
	frame = protowire.AppendTag(frame, 200, protowire.VarintType)
	frame = protowire.AppendVarint(frame, 7)
	frame = protowire.AppendTag(frame, 201, protowire.BytesType)
	frame = protowire.AppendBytes(frame, []byte("ignored"))
	frame = protowire.AppendTag(frame, 202, protowire.Fixed64Type)
	frame = protowire.AppendFixed64(frame, 123456789)
	frame = protowire.AppendTag(frame, 203, protowire.Fixed32Type)
	frame = protowire.AppendFixed32(frame, 4242)

	deal := DecodeFirstDeal(frame)
	require.NotNil(t, deal)
	assert.Equal(t, "0.5", deal.Price)
	assert.Equal(t, "10", deal.Quantity)
}

func TestDecodeSkipsOtherChannelPayloads(t *testing.T) {
	// Another 301..315 sub-message ahead of the deals payload must be
	// skipped by length without confusing the decoder.
	var frame []byte
	frame = protowire.AppendTag(frame, 308, protowire.BytesType)
	frame = protowire.AppendBytes(frame, protowire.AppendString(
		protowire.AppendTag(nil, 1, protowire.BytesType), "someOtherPayload"))
	frame = AppendDeals(frame, DealsMessage{
		Deals: []Deal{{Price: "2.25", Quantity: "4", Time: 1700000000000}},
	})

	deal := DecodeFirstDeal(frame)
	require.NotNil(t, deal)
	assert.Equal(t, "2.25", deal.Price)
}

func TestDecodeMalformedInputReturnsNil(t *testing.T) {
	cases := map[string][]byte{
		"truncated tag":    {0x92},
		"truncated string": {0x0a, 0x10, 'x'},
		"truncated varint": {0x28, 0x80},
		"random bytes":     {0xff, 0xff, 0xff, 0xff},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, DecodeFirstDeal(raw))
		})
	}
}

func TestDecodeEmptyDealsYieldsNil(t *testing.T) {
	frame := AppendDeals(nil, DealsMessage{Symbol: "BTCUSDT"})
	assert.Nil(t, DecodeFirstDeal(frame))
}

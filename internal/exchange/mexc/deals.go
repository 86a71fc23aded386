// Package mexc implements the MEXC venue adapter: a spot websocket session
// that carries a compressed binary deals stream, a JSON derivative ticker
// session, and REST listing probes.
package mexc

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Wrapper field numbers of the push message carried on the spot websocket.
// The stream uses standard protobuf wire format; only the subset of fields
// needed for pricing is decoded, everything else is skipped by wire type.
const (
	fieldChannel    = 1
	fieldSymbol     = 3
	fieldCreateTime = 5
	fieldSendTime   = 6

	// Sub-message slots 301..315 carry the per-channel payloads; 314 is
	// the aggregated public deals stream.
	fieldAggreDeals = 314

	// PublicAggreDeals message.
	fieldDealsItem = 1
	fieldEventType = 2

	// Deal item message.
	fieldDealPrice    = 1
	fieldDealQuantity = 2
	fieldDealType     = 3
	fieldDealTime     = 4
)

// Deal is one trade from the aggregated deals stream. Price and Quantity are
// decimal strings exactly as the venue sends them.
type Deal struct {
	Price     string
	Quantity  string
	TradeType int32
	Time      int64
}

// DealsMessage is the decoded subset of the spot push wrapper.
type DealsMessage struct {
	Channel    string
	Symbol     string
	CreateTime int64
	SendTime   int64
	EventType  string
	Deals      []Deal
}

// DecodeFirstDeal decodes a binary push frame and returns the first deal, or
// nil when the frame carries no deals or cannot be parsed. It never panics on
// malformed input.
func DecodeFirstDeal(b []byte) *Deal {
	msg, err := DecodeDeals(b)
	if err != nil || msg == nil || len(msg.Deals) == 0 {
		return nil
	}
	d := msg.Deals[0]
	return &d
}

// DecodeDeals decodes the wrapper message. Unknown fields, including the
// other 301..315 channel payloads, are skipped by length.
func DecodeDeals(b []byte) (*DealsMessage, error) {
	var msg DealsMessage
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldChannel && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			msg.Channel = v
			b = b[n:]
		case num == fieldSymbol && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			msg.Symbol = v
			b = b[n:]
		case num == fieldCreateTime && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			msg.CreateTime = int64(v)
			b = b[n:]
		case num == fieldSendTime && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			msg.SendTime = int64(v)
			b = b[n:]
		case num == fieldAggreDeals && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			if err := decodeAggreDeals(v, &msg); err != nil {
				return nil, err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return &msg, nil
}

func decodeAggreDeals(b []byte, msg *DealsMessage) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldDealsItem && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			deal, err := decodeDeal(v)
			if err != nil {
				return err
			}
			msg.Deals = append(msg.Deals, deal)
			b = b[n:]
		case num == fieldEventType && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			msg.EventType = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func decodeDeal(b []byte) (Deal, error) {
	var d Deal
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return d, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldDealPrice && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return d, protowire.ParseError(n)
			}
			d.Price = v
			b = b[n:]
		case num == fieldDealQuantity && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return d, protowire.ParseError(n)
			}
			d.Quantity = v
			b = b[n:]
		case num == fieldDealType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return d, protowire.ParseError(n)
			}
			d.TradeType = int32(v)
			b = b[n:]
		case num == fieldDealTime && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return d, protowire.ParseError(n)
			}
			d.Time = int64(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return d, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return d, nil
}

// AppendDeals encodes msg in the venue's wire format. It exists for the
// encode-then-decode round trip in tests and for stubbed frame generation.
func AppendDeals(dst []byte, msg DealsMessage) []byte {
	if msg.Channel != "" {
		dst = protowire.AppendTag(dst, fieldChannel, protowire.BytesType)
		dst = protowire.AppendString(dst, msg.Channel)
	}
	if msg.Symbol != "" {
		dst = protowire.AppendTag(dst, fieldSymbol, protowire.BytesType)
		dst = protowire.AppendString(dst, msg.Symbol)
	}
	if msg.CreateTime != 0 {
		dst = protowire.AppendTag(dst, fieldCreateTime, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(msg.CreateTime))
	}
	if msg.SendTime != 0 {
		dst = protowire.AppendTag(dst, fieldSendTime, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(msg.SendTime))
	}
	if len(msg.Deals) > 0 || msg.EventType != "" {
		var body []byte
		for _, d := range msg.Deals {
			item := appendDeal(nil, d)
			body = protowire.AppendTag(body, fieldDealsItem, protowire.BytesType)
			body = protowire.AppendBytes(body, item)
		}
		if msg.EventType != "" {
			body = protowire.AppendTag(body, fieldEventType, protowire.BytesType)
			body = protowire.AppendString(body, msg.EventType)
		}
		dst = protowire.AppendTag(dst, fieldAggreDeals, protowire.BytesType)
		dst = protowire.AppendBytes(dst, body)
	}
	return dst
}

func appendDeal(dst []byte, d Deal) []byte {
	if d.Price != "" {
		dst = protowire.AppendTag(dst, fieldDealPrice, protowire.BytesType)
		dst = protowire.AppendString(dst, d.Price)
	}
	if d.Quantity != "" {
		dst = protowire.AppendTag(dst, fieldDealQuantity, protowire.BytesType)
		dst = protowire.AppendString(dst, d.Quantity)
	}
	if d.TradeType != 0 {
		dst = protowire.AppendTag(dst, fieldDealType, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(int64(d.TradeType)))
	}
	if d.Time != 0 {
		dst = protowire.AppendTag(dst, fieldDealTime, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(d.Time))
	}
	return dst
}

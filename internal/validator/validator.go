// Package validator implements the Validator (C1): the sole conversion
// boundary between a free-form inbound payload and the canonical Signal
// type the rest of the pipeline operates on.
package validator

import (
	"strconv"
	"strings"
	"time"

	"github.com/yusuke746/trading-system/internal/errs"
	"github.com/yusuke746/trading-system/internal/model"
)

var validEvents = map[model.Event]bool{
	model.EventPredictionSignal: true,
	model.EventZoneRetraceTouch: true,
	model.EventNewZoneConfirmed: true,
	model.EventFVGTouch:         true,
	model.EventLiquiditySweep:   true,
}

// symbolAliases maps broker/TradingView symbol spellings onto the one
// canonical symbol this engine trades.
var symbolAliases = map[string]string{
	"GOLD":   "GOLD",
	"XAUUSD": "GOLD",
}

// Raw is the free-form payload shape the webhook decodes JSON into.
type Raw map[string]interface{}

// Validate converts raw into a canonical Signal, or returns a
// *errs.Error{Kind: KindValidation} describing the first rejection.
//
// Required fields: signal_type, event, price. direction may arrive under
// any of three aliases (direction, side, action) and is normalized to
// lowercase; it is required only when signal_type=entry_trigger. Numeric
// coercion is strict: a price that doesn't parse is rejected rather than
// silently truncated. Missing optional confidences become nil, not zero.
func Validate(raw Raw) (model.Signal, error) {
	for _, field := range []string{"signal_type", "event", "price"} {
		if _, ok := raw[field]; !ok {
			return model.Signal{}, errs.Validation("missing required field: " + field)
		}
	}

	kindStr := strings.ToLower(strings.TrimSpace(asString(raw["signal_type"])))
	var kind model.SignalKind
	switch kindStr {
	case string(model.KindEntryTrigger):
		kind = model.KindEntryTrigger
	case string(model.KindStructure):
		kind = model.KindStructure
	default:
		return model.Signal{}, errs.Validation("unknown signal_type: " + kindStr)
	}

	eventStr := strings.ToLower(strings.TrimSpace(asString(raw["event"])))
	event := model.Event(eventStr)
	if !validEvents[event] {
		return model.Signal{}, errs.Validation("unknown event: " + eventStr)
	}

	direction, err := normalizeDirection(raw)
	if err != nil {
		return model.Signal{}, err
	}
	if kind == model.KindEntryTrigger && direction == "" {
		return model.Signal{}, errs.Validation("direction is required for entry_trigger signals")
	}

	price, err := strictFloat(raw["price"])
	if err != nil {
		return model.Signal{}, errs.Validation("price did not parse as a number: " + err.Error())
	}

	sig := model.Signal{
		Symbol:            normalizeSymbol(asString(raw["symbol"])),
		Price:             price,
		Timeframe:         optionalInt(raw["tf"]),
		Direction:         direction,
		Kind:              kind,
		Event:             event,
		Source:            asString(raw["source"]),
		Strength:          optionalFloatOrZero(raw["strength"]),
		Confirmed:         model.Confirmation(strings.ToLower(asString(raw["confirmed"]))),
		TVConfidence:      optionalFloat(raw["tv_confidence"]),
		PatternSimilarity: optionalFloat(raw["pattern_similarity"]),
		ReceivedAt:        time.Now().UTC(),
	}

	if !sig.Valid() {
		return model.Signal{}, errs.Validation("signal fails kind/event invariant")
	}

	return sig, nil
}

// normalizeDirection reads direction under any of the three accepted
// aliases, in priority order, and lowercases it. An entry_trigger signal
// whose resolved value isn't buy/sell is rejected; a structure signal with
// no direction at all is fine (the field stays empty).
func normalizeDirection(raw Raw) (model.Direction, error) {
	for _, alias := range []string{"direction", "side", "action"} {
		if v, ok := raw[alias]; ok {
			s := strings.ToLower(strings.TrimSpace(asString(v)))
			if s == "" {
				continue
			}
			switch model.Direction(s) {
			case model.DirectionBuy, model.DirectionSell:
				return model.Direction(s), nil
			default:
				return "", errs.Validation("unknown direction: " + s)
			}
		}
	}
	return "", nil
}

func normalizeSymbol(raw string) string {
	if raw == "" {
		return "GOLD"
	}
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if mapped, ok := symbolAliases[upper]; ok {
		return mapped
	}
	return upper
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// strictFloat parses v as a float64 from either a JSON number or a numeric
// string, returning an error rather than silently coercing garbage to 0.
func strictFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, strconv.ErrSyntax
	}
}

func optionalFloat(v interface{}) *float64 {
	if v == nil {
		return nil
	}
	f, err := strictFloat(v)
	if err != nil {
		return nil
	}
	return &f
}

func optionalFloatOrZero(v interface{}) float64 {
	f, err := strictFloat(v)
	if err != nil {
		return 0
	}
	return f
}

func optionalInt(v interface{}) *int {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case float64:
		i := int(t)
		return &i
	case int:
		return &t
	case string:
		i, err := strconv.Atoi(t)
		if err != nil {
			return nil
		}
		return &i
	default:
		return nil
	}
}

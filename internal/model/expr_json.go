package model

import (
	"encoding/json"
	"fmt"
)

// exprJSON mirrors the Cedar JSON-expression grammar: exactly one of its
// fields is populated per expression node, selected by key name rather than
// a discriminator field (e.g. {"Value":1}, {"!":{...}}, {".":{...}}).
// Nested operands are typed as JsonExpr itself so encoding/json recurses
// through its own Marshal/UnmarshalJSON methods.
type exprJSON struct {
	Value *json.RawMessage `json:"Value,omitempty"`
	Var   string           `json:"Var,omitempty"`
	Slot  string           `json:"Slot,omitempty"`

	Not *JsonExpr `json:"!,omitempty"`
	Neg *JsonExpr `json:"neg,omitempty"`

	Eq          *binArgs `json:"==,omitempty"`
	NotEq       *binArgs `json:"!=,omitempty"`
	In          *binArgs `json:"in,omitempty"`
	Less        *binArgs `json:"<,omitempty"`
	LessEq      *binArgs `json:"<=,omitempty"`
	Greater     *binArgs `json:">,omitempty"`
	GreaterEq   *binArgs `json:">=,omitempty"`
	And         *binArgs `json:"&&,omitempty"`
	Or          *binArgs `json:"||,omitempty"`
	Add         *binArgs `json:"+,omitempty"`
	Sub         *binArgs `json:"-,omitempty"`
	Mul         *binArgs `json:"*,omitempty"`
	Contains    *binArgs `json:"contains,omitempty"`
	ContainsAll *binArgs `json:"containsAll,omitempty"`
	ContainsAny *binArgs `json:"containsAny,omitempty"`

	Dot *dotArgs `json:".,omitempty"`
	Has *dotArgs `json:"has,omitempty"`

	Is *isArgs `json:"is,omitempty"`

	Like *likeArgs `json:"like,omitempty"`

	If *ifArgs `json:"if-then-else,omitempty"`

	Set []JsonExpr `json:"Set,omitempty"`

	Record map[string]JsonExpr `json:"Record,omitempty"`
}

type binArgs struct {
	Left  JsonExpr `json:"left"`
	Right JsonExpr `json:"right"`
}

type dotArgs struct {
	Left JsonExpr `json:"left"`
	Attr string   `json:"attr"`
}

type isArgs struct {
	Left       JsonExpr  `json:"left"`
	EntityType string    `json:"entity_type"`
	In         *JsonExpr `json:"in,omitempty"`
}

type likeArgs struct {
	Left    JsonExpr `json:"left"`
	Pattern string   `json:"pattern"`
}

type ifArgs struct {
	If   JsonExpr `json:"if"`
	Then JsonExpr `json:"then"`
	Else JsonExpr `json:"else"`
}

var knownExprKeys = map[string]struct{}{
	"Value": {}, "Var": {}, "Slot": {}, "!": {}, "neg": {},
	"==": {}, "!=": {}, "in": {}, "<": {}, "<=": {}, ">": {}, ">=": {},
	"&&": {}, "||": {}, "+": {}, "-": {}, "*": {},
	"contains": {}, "containsAll": {}, "containsAny": {},
	".": {}, "has": {}, "is": {}, "like": {}, "if-then-else": {},
	"Set": {}, "Record": {},
}

func (e JsonExpr) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case ExprValue:
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		raw := json.RawMessage(v)
		return json.Marshal(exprJSON{Value: &raw})
	case ExprVar:
		return json.Marshal(exprJSON{Var: string(e.Var)})
	case ExprSlot:
		return json.Marshal(exprJSON{Slot: e.Slot.String()})
	case ExprNot:
		return json.Marshal(exprJSON{Not: e.Inner})
	case ExprNeg:
		return json.Marshal(exprJSON{Neg: e.Inner})
	case ExprBinary:
		if e.Left == nil || e.Right == nil {
			return nil, fmt.Errorf("%w: binary expr missing operand", ErrInvalidEncoding)
		}
		args := &binArgs{Left: *e.Left, Right: *e.Right}
		w := exprJSON{}
		switch e.Op {
		case BinEq:
			w.Eq = args
		case BinNotEq:
			w.NotEq = args
		case BinIn:
			w.In = args
		case BinLess:
			w.Less = args
		case BinLessEq:
			w.LessEq = args
		case BinGreater:
			w.Greater = args
		case BinGreaterEq:
			w.GreaterEq = args
		case BinAnd:
			w.And = args
		case BinOr:
			w.Or = args
		case BinAdd:
			w.Add = args
		case BinSub:
			w.Sub = args
		case BinMul:
			w.Mul = args
		case BinContains:
			w.Contains = args
		case BinContainsAll:
			w.ContainsAll = args
		case BinContainsAny:
			w.ContainsAny = args
		default:
			return nil, fmt.Errorf("%w: unknown binary op %q", ErrInvalidEncoding, e.Op)
		}
		return json.Marshal(w)
	case ExprDot:
		if e.Inner == nil {
			return nil, fmt.Errorf("%w: dot expr missing operand", ErrInvalidEncoding)
		}
		return json.Marshal(exprJSON{Dot: &dotArgs{Left: *e.Inner, Attr: e.Attr}})
	case ExprHas:
		if e.Inner == nil {
			return nil, fmt.Errorf("%w: has expr missing operand", ErrInvalidEncoding)
		}
		return json.Marshal(exprJSON{Has: &dotArgs{Left: *e.Inner, Attr: e.Attr}})
	case ExprIs:
		if e.Inner == nil {
			return nil, fmt.Errorf("%w: is expr missing operand", ErrInvalidEncoding)
		}
		args := &isArgs{Left: *e.Inner, EntityType: e.IsType}
		if e.IsInEntity != nil {
			args.In = e.IsInEntity
		}
		return json.Marshal(exprJSON{Is: args})
	case ExprLike:
		if e.Inner == nil {
			return nil, fmt.Errorf("%w: like expr missing operand", ErrInvalidEncoding)
		}
		return json.Marshal(exprJSON{Like: &likeArgs{Left: *e.Inner, Pattern: e.Pattern}})
	case ExprIfThenElse:
		if e.If == nil || e.Then == nil || e.Else == nil {
			return nil, fmt.Errorf("%w: if-then-else missing branch", ErrInvalidEncoding)
		}
		return json.Marshal(exprJSON{If: &ifArgs{If: *e.If, Then: *e.Then, Else: *e.Else}})
	case ExprSet:
		return json.Marshal(exprJSON{Set: e.Elements})
	case ExprRecord:
		return json.Marshal(exprJSON{Record: e.Fields})
	case ExprExtensionCall:
		return json.Marshal(map[string][]JsonExpr{e.ExtnFn: e.ExtnArgs})
	default:
		return nil, fmt.Errorf("%w: unknown expr kind %d", ErrInvalidEncoding, e.Kind)
	}
}

func (e *JsonExpr) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: expr: %v", ErrInvalidEncoding, err)
	}

	if v, ok := raw["Value"]; ok {
		var attr EntityAttr
		if err := json.Unmarshal(v, &attr); err != nil {
			return err
		}
		*e = JsonExpr{Kind: ExprValue, Value: attr}
		return nil
	}
	if v, ok := raw["Var"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		*e = JsonExpr{Kind: ExprVar, Var: Var(s)}
		return nil
	}
	if v, ok := raw["Slot"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		slot, err := parseSlot(s)
		if err != nil {
			return err
		}
		*e = JsonExpr{Kind: ExprSlot, Slot: slot}
		return nil
	}
	if v, ok := raw["!"]; ok {
		inner, err := unmarshalExprPtr(v)
		if err != nil {
			return err
		}
		*e = JsonExpr{Kind: ExprNot, Inner: inner}
		return nil
	}
	if v, ok := raw["neg"]; ok {
		inner, err := unmarshalExprPtr(v)
		if err != nil {
			return err
		}
		*e = JsonExpr{Kind: ExprNeg, Inner: inner}
		return nil
	}
	for key, op := range map[string]BinOp{
		"==": BinEq, "!=": BinNotEq, "in": BinIn, "<": BinLess, "<=": BinLessEq,
		">": BinGreater, ">=": BinGreaterEq, "&&": BinAnd, "||": BinOr,
		"+": BinAdd, "-": BinSub, "*": BinMul,
		"contains": BinContains, "containsAll": BinContainsAll, "containsAny": BinContainsAny,
	} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		var args binArgs
		if err := json.Unmarshal(v, &args); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidEncoding, key, err)
		}
		left, right := args.Left, args.Right
		*e = JsonExpr{Kind: ExprBinary, Op: op, Left: &left, Right: &right}
		return nil
	}
	if v, ok := raw["."]; ok {
		var args dotArgs
		if err := json.Unmarshal(v, &args); err != nil {
			return fmt.Errorf("%w: dot: %v", ErrInvalidEncoding, err)
		}
		left := args.Left
		*e = JsonExpr{Kind: ExprDot, Inner: &left, Attr: args.Attr}
		return nil
	}
	if v, ok := raw["has"]; ok {
		var args dotArgs
		if err := json.Unmarshal(v, &args); err != nil {
			return fmt.Errorf("%w: has: %v", ErrInvalidEncoding, err)
		}
		left := args.Left
		*e = JsonExpr{Kind: ExprHas, Inner: &left, Attr: args.Attr}
		return nil
	}
	if v, ok := raw["is"]; ok {
		var args isArgs
		if err := json.Unmarshal(v, &args); err != nil {
			return fmt.Errorf("%w: is: %v", ErrInvalidEncoding, err)
		}
		left := args.Left
		expr := JsonExpr{Kind: ExprIs, Inner: &left, IsType: args.EntityType}
		if args.In != nil {
			in := *args.In
			expr.IsInEntity = &in
		}
		*e = expr
		return nil
	}
	if v, ok := raw["like"]; ok {
		var args likeArgs
		if err := json.Unmarshal(v, &args); err != nil {
			return fmt.Errorf("%w: like: %v", ErrInvalidEncoding, err)
		}
		left := args.Left
		*e = JsonExpr{Kind: ExprLike, Inner: &left, Pattern: args.Pattern}
		return nil
	}
	if v, ok := raw["if-then-else"]; ok {
		var args ifArgs
		if err := json.Unmarshal(v, &args); err != nil {
			return fmt.Errorf("%w: if-then-else: %v", ErrInvalidEncoding, err)
		}
		ifE, thenE, elseE := args.If, args.Then, args.Else
		*e = JsonExpr{Kind: ExprIfThenElse, If: &ifE, Then: &thenE, Else: &elseE}
		return nil
	}
	if v, ok := raw["Set"]; ok {
		var elems []JsonExpr
		if err := json.Unmarshal(v, &elems); err != nil {
			return fmt.Errorf("%w: set: %v", ErrInvalidEncoding, err)
		}
		*e = JsonExpr{Kind: ExprSet, Elements: elems}
		return nil
	}
	if v, ok := raw["Record"]; ok {
		var fields map[string]JsonExpr
		if err := json.Unmarshal(v, &fields); err != nil {
			return fmt.Errorf("%w: record: %v", ErrInvalidEncoding, err)
		}
		*e = JsonExpr{Kind: ExprRecord, Fields: fields}
		return nil
	}

	// Anything left over is an extension-function call: {"fn": [args...]}.
	for key, v := range raw {
		if _, known := knownExprKeys[key]; known {
			continue
		}
		var args []JsonExpr
		if err := json.Unmarshal(v, &args); err != nil {
			return fmt.Errorf("%w: extension call %s: %v", ErrInvalidEncoding, key, err)
		}
		*e = JsonExpr{Kind: ExprExtensionCall, ExtnFn: key, ExtnArgs: args}
		return nil
	}

	return fmt.Errorf("%w: unrecognized expr shape", ErrInvalidEncoding)
}

func unmarshalExprPtr(b []byte) (*JsonExpr, error) {
	var e JsonExpr
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

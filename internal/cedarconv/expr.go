package cedarconv

import (
	"fmt"
	"strings"

	"cedrus/internal/model"
)

var infixOps = map[model.BinOp]string{
	model.BinEq:        "==",
	model.BinNotEq:     "!=",
	model.BinIn:        "in",
	model.BinLess:      "<",
	model.BinLessEq:    "<=",
	model.BinGreater:   ">",
	model.BinGreaterEq: ">=",
	model.BinAnd:       "&&",
	model.BinOr:        "||",
	model.BinAdd:       "+",
	model.BinSub:       "-",
	model.BinMul:       "*",
}

var methodOps = map[model.BinOp]string{
	model.BinContains:    "contains",
	model.BinContainsAll: "containsAll",
	model.BinContainsAny: "containsAny",
}

// exprText renders a JsonExpr condition body as Cedar expression source.
func exprText(e model.JsonExpr) (string, error) {
	switch e.Kind {
	case model.ExprValue:
		return attrLiteral(e.Value)
	case model.ExprVar:
		return string(e.Var), nil
	case model.ExprSlot:
		return e.Slot.String(), nil
	case model.ExprNot:
		inner, err := exprText(*e.Inner)
		if err != nil {
			return "", err
		}
		return "!(" + inner + ")", nil
	case model.ExprNeg:
		inner, err := exprText(*e.Inner)
		if err != nil {
			return "", err
		}
		return "-(" + inner + ")", nil
	case model.ExprBinary:
		left, err := exprText(*e.Left)
		if err != nil {
			return "", err
		}
		right, err := exprText(*e.Right)
		if err != nil {
			return "", err
		}
		if sym, ok := infixOps[e.Op]; ok {
			return "(" + left + " " + sym + " " + right + ")", nil
		}
		if method, ok := methodOps[e.Op]; ok {
			return left + "." + method + "(" + right + ")", nil
		}
		return "", fmt.Errorf("cedarconv: unknown binary op %q", e.Op)
	case model.ExprDot:
		inner, err := exprText(*e.Inner)
		if err != nil {
			return "", err
		}
		return inner + "[" + quoted(e.Attr) + "]", nil
	case model.ExprHas:
		inner, err := exprText(*e.Inner)
		if err != nil {
			return "", err
		}
		return inner + " has " + quoted(e.Attr), nil
	case model.ExprIs:
		inner, err := exprText(*e.Inner)
		if err != nil {
			return "", err
		}
		out := inner + " is " + e.IsType
		if e.IsInEntity != nil {
			in, err := exprText(*e.IsInEntity)
			if err != nil {
				return "", err
			}
			out += " in " + in
		}
		return out, nil
	case model.ExprLike:
		inner, err := exprText(*e.Inner)
		if err != nil {
			return "", err
		}
		return inner + " like " + quoted(e.Pattern), nil
	case model.ExprIfThenElse:
		cond, err := exprText(*e.If)
		if err != nil {
			return "", err
		}
		then, err := exprText(*e.Then)
		if err != nil {
			return "", err
		}
		els, err := exprText(*e.Else)
		if err != nil {
			return "", err
		}
		return "(if " + cond + " then " + then + " else " + els + ")", nil
	case model.ExprSet:
		parts := make([]string, len(e.Elements))
		for i, el := range e.Elements {
			p, err := exprText(el)
			if err != nil {
				return "", err
			}
			parts[i] = p
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case model.ExprRecord:
		parts := make([]string, 0, len(e.Fields))
		for k, v := range e.Fields {
			p, err := exprText(v)
			if err != nil {
				return "", err
			}
			parts = append(parts, quoted(k)+": "+p)
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	case model.ExprExtensionCall:
		parts := make([]string, len(e.ExtnArgs))
		for i, a := range e.ExtnArgs {
			p, err := exprText(a)
			if err != nil {
				return "", err
			}
			parts[i] = p
		}
		return e.ExtnFn + "(" + strings.Join(parts, ", ") + ")", nil
	default:
		return "", fmt.Errorf("cedarconv: unknown expr kind %d", e.Kind)
	}
}

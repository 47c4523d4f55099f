package model

// ExprKind discriminates the closed JsonExpr variant set used inside
// policy/template conditions (the Cedar JSON-expression tree).
type ExprKind uint8

const (
	ExprInvalid ExprKind = iota
	ExprValue                 // literal EntityAttr
	ExprVar                   // "principal" | "action" | "resource" | "context"
	ExprSlot                  // ?principal | ?resource inside a condition (rare but legal)
	ExprNot                   // unary !
	ExprNeg                   // unary -
	ExprBinary                // left OP right
	ExprDot                   // e.attr
	ExprHas                   // e has "attr"
	ExprIs                    // e is Type [in x]
	ExprLike                  // e like "pattern"
	ExprIfThenElse            // if c then a else b
	ExprSet                   // [a, b, ...]
	ExprRecord                // {k: v, ...}
	ExprExtensionCall         // fn(args...)
)

// BinOp enumerates the binary operators reachable from Cedar JSON expressions.
type BinOp string

const (
	BinEq         BinOp = "=="
	BinNotEq      BinOp = "!="
	BinIn         BinOp = "in"
	BinLess       BinOp = "<"
	BinLessEq     BinOp = "<="
	BinGreater    BinOp = ">"
	BinGreaterEq  BinOp = ">="
	BinAnd        BinOp = "&&"
	BinOr         BinOp = "||"
	BinAdd        BinOp = "+"
	BinSub        BinOp = "-"
	BinMul        BinOp = "*"
	BinContains       BinOp = "contains"
	BinContainsAll    BinOp = "containsAll"
	BinContainsAny    BinOp = "containsAny"
)

// Var enumerates the request variables reachable inside a condition.
type Var string

const (
	VarPrincipal Var = "principal"
	VarAction    Var = "action"
	VarResource  Var = "resource"
	VarContext   Var = "context"
)

// JsonExpr is the recursive Cedar JSON-expression tree.
type JsonExpr struct {
	Kind ExprKind

	Value EntityAttr // ExprValue
	Var   Var        // ExprVar
	Slot  SlotId      // ExprSlot

	Inner *JsonExpr // ExprNot, ExprNeg, ExprDot/ExprHas/ExprIs left side, ExprLike left side

	Left  *JsonExpr // ExprBinary
	Right *JsonExpr
	Op    BinOp

	Attr string // ExprDot / ExprHas target attribute name

	IsType     string     // ExprIs
	IsInEntity *JsonExpr  // ExprIs optional "in" clause

	Pattern string // ExprLike

	If   *JsonExpr // ExprIfThenElse
	Then *JsonExpr
	Else *JsonExpr

	Elements []JsonExpr // ExprSet

	Fields map[string]JsonExpr // ExprRecord

	ExtnFn   string     // ExprExtensionCall
	ExtnArgs []JsonExpr
}

package ir

// Linkage controls how a global value takes part in linking.
type Linkage uint8

const (
	// External is the default: visible to other modules and linked normally.
	External Linkage = iota
	// AvailableExternally definitions are never emitted; the symbol resolves elsewhere.
	AvailableExternally
	LinkOnceAny
	LinkOnceODR
	WeakAny
	WeakODR
	Appending
	// Internal symbols are visible only inside their module.
	Internal
	Private
	ExternalWeak
	Common
)

var linkageNames = [...]string{
	External:            "external",
	AvailableExternally: "available_externally",
	LinkOnceAny:         "linkonce",
	LinkOnceODR:         "linkonce_odr",
	WeakAny:             "weak",
	WeakODR:             "weak_odr",
	Appending:           "appending",
	Internal:            "internal",
	Private:             "private",
	ExternalWeak:        "extern_weak",
	Common:              "common",
}

func (l Linkage) String() string {
	if int(l) < len(linkageNames) {
		return linkageNames[l]
	}
	return "unknown"
}

// IsLocal reports linkages whose symbols are not visible outside the module.
func (l Linkage) IsLocal() bool {
	return l == Internal || l == Private
}

// IsMergeable reports linkages whose duplicate definitions are merged
// instead of colliding.
func (l Linkage) IsMergeable() bool {
	switch l {
	case LinkOnceAny, LinkOnceODR, WeakAny, WeakODR, Common:
		return true
	}
	return false
}

// Predicate is a comparison condition. Integer comparisons are signed unless
// one of the Unsigned predicates is used; float comparisons are ordered.
type Predicate uint8

const (
	Equal Predicate = iota
	NotEqual
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
	UnsignedGreaterThan
	UnsignedGreaterThanOrEqual
	UnsignedLessThan
	UnsignedLessThanOrEqual
)

var predicateNames = [...]string{
	Equal:                      "eq",
	NotEqual:                   "ne",
	GreaterThan:                "sgt",
	GreaterThanOrEqual:         "sge",
	LessThan:                   "slt",
	LessThanOrEqual:            "sle",
	UnsignedGreaterThan:        "ugt",
	UnsignedGreaterThanOrEqual: "uge",
	UnsignedLessThan:           "ult",
	UnsignedLessThanOrEqual:    "ule",
}

var floatPredicateNames = [...]string{
	Equal:              "oeq",
	NotEqual:           "one",
	GreaterThan:        "ogt",
	GreaterThanOrEqual: "oge",
	LessThan:           "olt",
	LessThanOrEqual:    "ole",
}

func (p Predicate) String() string {
	if int(p) < len(predicateNames) {
		return predicateNames[p]
	}
	return "unknown"
}

// IsUnsigned reports the unsigned integer predicates.
func (p Predicate) IsUnsigned() bool {
	return p >= UnsignedGreaterThan && p <= UnsignedLessThanOrEqual
}

// Opcode identifies an instruction.
type Opcode uint8

const (
	OpRet Opcode = iota
	OpBr
	OpCondBr
	OpSwitch
	OpUnreachable

	OpAdd
	OpSub
	OpMul
	OpSDiv
	OpUDiv
	OpFDiv
	OpSRem
	OpURem
	OpNeg

	OpAnd
	OpOr
	OpXor
	OpShl
	OpLShr
	OpAShr
	OpNot

	OpICmp
	OpFCmp

	OpTrunc
	OpZExt
	OpSExt
	OpFPTrunc
	OpFPExt
	OpFPToSI
	OpFPToUI
	OpSIToFP
	OpUIToFP
	OpBitCast
	OpPtrToInt
	OpIntToPtr

	OpSelect
	OpPhi
	OpLoad
	OpStore
	OpCall
)

var opcodeNames = [...]string{
	OpRet:         "ret",
	OpBr:          "br",
	OpCondBr:      "br",
	OpSwitch:      "switch",
	OpUnreachable: "unreachable",
	OpAdd:         "add",
	OpSub:         "sub",
	OpMul:         "mul",
	OpSDiv:        "sdiv",
	OpUDiv:        "udiv",
	OpFDiv:        "fdiv",
	OpSRem:        "srem",
	OpURem:        "urem",
	OpNeg:         "neg",
	OpAnd:         "and",
	OpOr:          "or",
	OpXor:         "xor",
	OpShl:         "shl",
	OpLShr:        "lshr",
	OpAShr:        "ashr",
	OpNot:         "not",
	OpICmp:        "icmp",
	OpFCmp:        "fcmp",
	OpTrunc:       "trunc",
	OpZExt:        "zext",
	OpSExt:        "sext",
	OpFPTrunc:     "fptrunc",
	OpFPExt:       "fpext",
	OpFPToSI:      "fptosi",
	OpFPToUI:      "fptoui",
	OpSIToFP:      "sitofp",
	OpUIToFP:      "uitofp",
	OpBitCast:     "bitcast",
	OpPtrToInt:    "ptrtoint",
	OpIntToPtr:    "inttoptr",
	OpSelect:      "select",
	OpPhi:         "phi",
	OpLoad:        "load",
	OpStore:       "store",
	OpCall:        "call",
}

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return "unknown"
}

// IsTerminator reports opcodes that end a basic block.
func (o Opcode) IsTerminator() bool {
	return o <= OpUnreachable
}

// IsBinary reports two-operand arithmetic and bitwise opcodes.
func (o Opcode) IsBinary() bool {
	return (o >= OpAdd && o <= OpURem) || (o >= OpAnd && o <= OpAShr)
}

// IsCast reports conversion opcodes.
func (o Opcode) IsCast() bool {
	return o >= OpTrunc && o <= OpIntToPtr
}

package pickle

// opcode is a single pickle stream opcode byte. The dispatch table below
// maps every opcode this package recognises to the decoder method that
// implements it, so adding or gating an opcode never means touching a
// giant switch.
type opcode byte

// Protocol 0 opcodes.
const (
	opMark            opcode = '('
	opStop            opcode = '.'
	opPop             opcode = '0'
	opPopMark         opcode = '1'
	opDup             opcode = '2'
	opFloat           opcode = 'F'
	opInt             opcode = 'I'
	opBinInt          opcode = 'J'
	opBinInt1         opcode = 'K'
	opLong            opcode = 'L'
	opBinInt2         opcode = 'M'
	opNone            opcode = 'N'
	opPersid          opcode = 'P'
	opBinPersid       opcode = 'Q'
	opReduce          opcode = 'R'
	opString          opcode = 'S'
	opBinString       opcode = 'T'
	opShortBinString  opcode = 'U'
	opUnicode         opcode = 'V'
	opAppend          opcode = 'a'
	opBuild           opcode = 'b'
	opGlobal          opcode = 'c'
	opDict            opcode = 'd'
	opEmptyDict       opcode = '}'
	opAppends         opcode = 'e'
	opGet             opcode = 'g'
	opBinGet          opcode = 'h'
	opInst            opcode = 'i'
	opLongBinGet      opcode = 'j'
	opList            opcode = 'l'
	opEmptyList       opcode = ']'
	opObj             opcode = 'o'
	opPut             opcode = 'p'
	opBinPut          opcode = 'q'
	opSetItem         opcode = 's'
	opTuple           opcode = 't'
	opEmptyTuple      opcode = ')'
	opSetItems        opcode = 'u'
	opBinFloat        opcode = 'G'
	opBinUnicode      opcode = 'X'
)

// Protocol 1-2 opcodes.
const (
	opProto    opcode = 0x80
	opNewObj   opcode = 0x81
	opExt1     opcode = 0x82
	opExt2     opcode = 0x83
	opExt4     opcode = 0x84
	opTuple1   opcode = 0x85
	opTuple2   opcode = 0x86
	opTuple3   opcode = 0x87
	opNewTrue  opcode = 0x88
	opNewFalse opcode = 0x89
	opLong1    opcode = 0x8a
	opLong4    opcode = 0x8b
)

// Protocol 3 opcodes.
const (
	opBinBytes      opcode = 'B'
	opShortBinBytes opcode = 'C'
)

// Protocol 4 opcodes.
const (
	opShortBinUnicode opcode = 0x8c
	opBinUnicode8     opcode = 0x8d
	opBinBytes8       opcode = 0x8e
	opEmptySet        opcode = 0x8f
	opAddItems        opcode = 0x90
	opFrozenSet       opcode = 0x91
	opNewObjEx        opcode = 0x92
	opStackGlobal     opcode = 0x93
	opMemoize         opcode = 0x94
	opFrame           opcode = 0x95
)

// Protocol 5 opcodes. The bytearray/buffer opcodes are recognised only
// so that they fail with Unsupported as soon as they are read -- this
// application never uses them.
const (
	opByteArray8     opcode = 0x96
	opNextBuffer     opcode = 0x97
	opReadOnlyBuffer opcode = 0x98
)

// opHandler decodes one opcode's operands (if any) and mutates the
// decoder's stack/memo. It returns a non-nil error to abort decoding.
type opHandler func(d *decoder) error

// dispatch is the opcode -> handler table. Keeping this as data (rather
// than one large switch) is what lets STOP be the only opcode to halt the
// loop and what lets Unsupported opcodes (persistent ids, the extension
// registry) fail with one clear message instead of a fallthrough default.
var dispatch = map[opcode]opHandler{
	opMark:    (*decoder).doMark,
	opStop:    nil, // handled directly by the read loop
	opPop:     (*decoder).doPop,
	opPopMark: (*decoder).doPopMark,
	opDup:     (*decoder).doDup,

	opNone:     (*decoder).doNone,
	opNewTrue:  (*decoder).doTrue,
	opNewFalse: (*decoder).doFalse,

	opInt:     (*decoder).doInt,
	opBinInt:  (*decoder).doBinInt,
	opBinInt1: (*decoder).doBinInt1,
	opBinInt2: (*decoder).doBinInt2,
	opLong:    (*decoder).doLong,
	opLong1:   (*decoder).doLong1,
	opLong4:   (*decoder).doLong4,

	opFloat:    (*decoder).doFloat,
	opBinFloat: (*decoder).doBinFloat,

	opString:          (*decoder).doString,
	opBinString:       (*decoder).doBinString,
	opShortBinString:  (*decoder).doShortBinString,
	opUnicode:         (*decoder).doUnicode,
	opBinUnicode:      (*decoder).doBinUnicode,
	opShortBinUnicode: (*decoder).doShortBinUnicode,
	opBinUnicode8:     (*decoder).doBinUnicode8,
	opBinBytes:        (*decoder).doBinBytes,
	opShortBinBytes:   (*decoder).doShortBinBytes,
	opBinBytes8:       (*decoder).doBinBytes8,

	opEmptyTuple: (*decoder).doEmptyTuple,
	opTuple:      (*decoder).doTuple,
	opTuple1:     (*decoder).doTuple1,
	opTuple2:     (*decoder).doTuple2,
	opTuple3:     (*decoder).doTuple3,
	opEmptyList:  (*decoder).doEmptyList,
	opList:       (*decoder).doList,
	opAppend:     (*decoder).doAppend,
	opAppends:    (*decoder).doAppends,

	opEmptyDict: (*decoder).doEmptyDict,
	opDict:      (*decoder).doDict,
	opSetItem:   (*decoder).doSetItem,
	opSetItems:  (*decoder).doSetItems,

	opEmptySet:  (*decoder).doEmptySet,
	opFrozenSet: (*decoder).doFrozenSet,
	opAddItems:  (*decoder).doAddItems,

	opGet:        (*decoder).doGet,
	opBinGet:     (*decoder).doBinGet,
	opLongBinGet: (*decoder).doLongBinGet,
	opPut:        (*decoder).doPut,
	opBinPut:     (*decoder).doBinPut,
	opMemoize:    (*decoder).doMemoize,

	opProto: (*decoder).doProto,
	opFrame: (*decoder).doFrame,

	opGlobal:      (*decoder).doGlobal,
	opStackGlobal: (*decoder).doStackGlobal,
	opReduce:      (*decoder).doReduce,
	opBuild:       (*decoder).doBuild,
	opNewObj:      (*decoder).doNewObj,
	opNewObjEx:    (*decoder).doNewObjEx,

	opPersid:          (*decoder).doUnsupported,
	opBinPersid:       (*decoder).doUnsupported,
	opExt1:            (*decoder).doUnsupported,
	opExt2:            (*decoder).doUnsupported,
	opExt4:            (*decoder).doUnsupported,
	opInst:            (*decoder).doUnsupported,
	opObj:             (*decoder).doUnsupported,
	opByteArray8:      (*decoder).doUnsupported,
	opNextBuffer:      (*decoder).doUnsupported,
	opReadOnlyBuffer:  (*decoder).doUnsupported,
}

package lime2

const (
	MnemonicLength = 7
	FrameLength    = MnemonicLength + 2

	AckMarker = "ACK_"
	AckLength = len(AckMarker) + 2
)

const (
	CommandTurnOn Command = iota + 1
	CommandTurnOff
	CommandNoop
	CommandStatus
)

// The TID travels as a single ASCII digit so it survives the text oriented
// command line of the transfer utility.
const (
	StatusTransactionID TransactionID = 0 // '0', STATUS probes only
	FirstTransactionID  TransactionID = 1 // '1'
	LastTransactionID   TransactionID = 9 // '9'

	StatusParameter uint8 = 0
)

const (
	Group1 uint8 = 1
	Group2 uint8 = 2
)

// Battery ADC to voltage conversion factors.
const (
	DefaultAngularCoeff  = 0.069 // V/ADC
	DefaultVoltageOffset = 4.386 // V
	DefaultMaxVoltage    = 13.0  // V
)

var mnemonics = map[Command]string{
	CommandTurnOn:  "TURNON_",
	CommandTurnOff: "TURNOFF",
	CommandNoop:    "NOOP___",
	CommandStatus:  "STATUS_",
}

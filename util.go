package websocket

func isControlFrame(opCode byte) bool {
	return opCode&0x8 != 0
}

func opCodeName(opCode byte) string {
	switch opCode {
	case PayloadTypeContinue:
		return "continue"
	case PayloadTypeText:
		return "text"
	case PayloadTypeBinary:
		return "binary"
	case PayloadTypeClose:
		return "close"
	case PayloadTypePing:
		return "ping"
	case PayloadTypePong:
		return "pong"
	}
	return "reserved"
}

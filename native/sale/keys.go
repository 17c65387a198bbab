package sale

var (
	contributorPrefix  = []byte("sale/contributor/")
	statsKey           = []byte("sale/stats")
	assetPrefix        = []byte("sale/asset/")
	assetIndexKey      = []byte("sale/asset/index")
	settlementPrefix   = []byte("sale/settlement/")
	settlementIndexKey = []byte("sale/settlement/index")
	journalPrefix      = []byte("sale/journal/")
	journalIndexKey    = []byte("sale/journal/index")
	custodyPrefix      = []byte("sale/custody/")
)

func contributorKey(addr [20]byte) []byte {
	buf := make([]byte, len(contributorPrefix)+len(addr))
	copy(buf, contributorPrefix)
	copy(buf[len(contributorPrefix):], addr[:])
	return buf
}

func assetKey(symbol string) []byte {
	buf := make([]byte, len(assetPrefix)+len(symbol))
	copy(buf, assetPrefix)
	copy(buf[len(assetPrefix):], symbol)
	return buf
}

func settlementKey(reference string) []byte {
	buf := make([]byte, len(settlementPrefix)+len(reference))
	copy(buf, settlementPrefix)
	copy(buf[len(settlementPrefix):], reference)
	return buf
}

func journalKey(instructionID string) []byte {
	buf := make([]byte, len(journalPrefix)+len(instructionID))
	copy(buf, journalPrefix)
	copy(buf[len(journalPrefix):], instructionID)
	return buf
}

func custodyKey(symbol string) []byte {
	buf := make([]byte, len(custodyPrefix)+len(symbol))
	copy(buf, custodyPrefix)
	copy(buf[len(custodyPrefix):], symbol)
	return buf
}

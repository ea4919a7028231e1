package internal

import "time"

var OneSecond = 1 * time.Second
var FiveSeconds = 5 * time.Second
var TenSeconds = 10 * time.Second
var ThirtySeconds = 30 * time.Second
var OneMinute = 1 * time.Minute

// Storage namespaces of the provisional store
const (
	ProvisionalStopsNamespace      = "shiftledger.provisional.stops"
	ProvisionalSignaturesNamespace = "shiftledger.provisional.signatures"
)

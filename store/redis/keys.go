package redis

// Key prefixes for primary entity storage.
const (
	prefixEventType = "ferry:evtype:"
	prefixEndpoint  = "ferry:ep:"
	prefixEvent     = "ferry:evt:"
	prefixTask      = "ferry:task:"
	prefixAttempt   = "ferry:att:"
)

// Keys for unique indexes.
const (
	uniqueEventTypeName = "ferry:u:evtype:name:" // + name → event type ID
	uniqueTaskPair      = "ferry:u:task:pair:"   // + endpointID|eventID → task ID
)

// Keys for sorted set indexes.
const (
	zEventTypeAll = "ferry:z:evtype:all"
	zEndpointAll  = "ferry:z:ep:all"
	zEventAll     = "ferry:z:evt:all"
	zTaskQueued   = "ferry:z:task:queued" // score = enqueue time; membership is the claim
	zTaskEP       = "ferry:z:task:ep:"    // + endpoint ID
	zTaskEvt      = "ferry:z:task:evt:"   // + event ID
	zAttemptAll   = "ferry:z:att:all"     // score = attempted-at; drives Purge
	zAttemptEP    = "ferry:z:att:ep:"     // + endpoint ID
	zAttemptTask  = "ferry:z:att:task:"   // + task ID, score = attempt number
)

// Key prefixes for set indexes.
const (
	sTaskState = "ferry:s:task:state:" // + state name
)

// Key prefix for the atomic per-endpoint counter hash. Counters live outside
// the endpoint JSON blob so HINCRBY keeps them lock-free under concurrency.
const hEndpointCounters = "ferry:h:ep:counters:" // + endpoint ID

func entityKey(prefix, id string) string {
	return prefix + id
}

func pairKey(epID, evtID string) string {
	return uniqueTaskPair + epID + "|" + evtID
}

func stateSetKey(state string) string {
	return sTaskState + state
}

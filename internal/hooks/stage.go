package hooks

// Stage names a fixed point in transaction processing at which registered
// plugins may run.
type Stage int

const (
	// StagePreRemap fires before remap has occurred.
	StagePreRemap Stage = iota
	// StagePostRemap fires directly after remap.
	StagePostRemap
	// StageSendRequest fires right before request headers go to the origin.
	StageSendRequest
	// StageReadResponse fires right after response headers arrive from the
	// origin.
	StageReadResponse
	// StageSendResponse fires right before response headers go to the client.
	StageSendResponse
	// StageOSDNS fires right after the OS DNS lookup.
	StageOSDNS

	stageCount
)

var stageNames = [...]string{
	StagePreRemap:     "read_request_pre_remap",
	StagePostRemap:    "read_request_post_remap",
	StageSendRequest:  "send_request",
	StageReadResponse: "read_response",
	StageSendResponse: "send_response",
	StageOSDNS:        "os_dns",
}

func (s Stage) String() string {
	if s < 0 || s >= stageCount {
		return "unknown"
	}
	return stageNames[s]
}

// Stages returns every stage in firing order.
func Stages() []Stage {
	all := make([]Stage, 0, int(stageCount))
	for s := Stage(0); s < stageCount; s++ {
		all = append(all, s)
	}
	return all
}

package main

import (
	"canisdk/core"
	"canisdk/scheduler"
)

// demoTask mirrors the CLI's own demo task: a trivial Task used so the
// debug server's /tasks endpoints have something real to drive without a
// host-supplied payload type.
type demoTask struct {
	Label string
}

func (t demoTask) Execute(ctx scheduler.ExecContext) error { return nil }

func demoTaskCodec() core.Codec[demoTask] {
	labelCodec := core.StringCodec(256)
	return core.Codec[demoTask]{
		MaxSize: labelCodec.MaxSize,
		Encode:  func(t demoTask) []byte { return labelCodec.Encode(t.Label) },
		Decode:  func(b []byte) demoTask { return demoTask{Label: labelCodec.Decode(b)} },
	}
}

package weave

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
)

// Signals for serializer events.
var (
	SignalSerializerCreated = capitan.NewSignal("weave.serializer.created", "Serializer instantiated")
	SignalWriteStart        = capitan.NewSignal("weave.write.start", "Write operation beginning")
	SignalWriteComplete     = capitan.NewSignal("weave.write.complete", "Write operation finished")
	SignalReadStart         = capitan.NewSignal("weave.read.start", "Read operation beginning")
	SignalReadComplete      = capitan.NewSignal("weave.read.complete", "Read operation finished")
)

// Keys for typed event data.
var (
	KeyRootType    = capitan.NewStringKey("root_type")
	KeyRootName    = capitan.NewStringKey("root_name")
	KeySize        = capitan.NewIntKey("size")
	KeyDuration    = capitan.NewDurationKey("duration")
	KeyObjectCount = capitan.NewIntKey("object_count")
	KeySharedCount = capitan.NewIntKey("shared_count")
	KeyError       = capitan.NewErrorKey("error")
)

// emitSerializerCreated emits an event when a serializer is created.
func emitSerializerCreated(ctx context.Context, rootType, rootName string) {
	capitan.Emit(ctx, SignalSerializerCreated,
		KeyRootType.Field(rootType),
		KeyRootName.Field(rootName),
	)
}

// emitWriteStart emits an event when a write begins.
func emitWriteStart(ctx context.Context, rootType, rootName string) {
	capitan.Emit(ctx, SignalWriteStart,
		KeyRootType.Field(rootType),
		KeyRootName.Field(rootName),
	)
}

// emitWriteComplete emits an event when a write finishes.
func emitWriteComplete(ctx context.Context, rootType, rootName string, size int, duration time.Duration, objects, shared int, err error) {
	fields := []capitan.Field{
		KeyRootType.Field(rootType),
		KeyRootName.Field(rootName),
		KeySize.Field(size),
		KeyDuration.Field(duration),
		KeyObjectCount.Field(objects),
		KeySharedCount.Field(shared),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalWriteComplete, fields...)
	} else {
		capitan.Emit(ctx, SignalWriteComplete, fields...)
	}
}

// emitReadStart emits an event when a read begins.
func emitReadStart(ctx context.Context, rootType, rootName string) {
	capitan.Emit(ctx, SignalReadStart,
		KeyRootType.Field(rootType),
		KeyRootName.Field(rootName),
	)
}

// emitReadComplete emits an event when a read finishes.
func emitReadComplete(ctx context.Context, rootType, rootName string, size int, duration time.Duration, objects int, err error) {
	fields := []capitan.Field{
		KeyRootType.Field(rootType),
		KeyRootName.Field(rootName),
		KeySize.Field(size),
		KeyDuration.Field(duration),
		KeyObjectCount.Field(objects),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalReadComplete, fields...)
	} else {
		capitan.Emit(ctx, SignalReadComplete, fields...)
	}
}

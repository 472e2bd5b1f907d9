package proxy

import (
	"context"
	"reflect"

	"go.opencensus.io/tag"

	"github.com/svdb-project/svdb/api"
	"github.com/svdb-project/svdb/metrics"
)

// MetricedSvdbAPI wraps an Svdb implementation so every call records its
// duration under the method name.
func MetricedSvdbAPI(a api.Svdb) api.Svdb {
	var out api.SvdbStruct
	proxy(a, &out.Internal)
	return &out
}

func proxy(in interface{}, outstr interface{}) {
	rint := reflect.ValueOf(outstr).Elem()
	ra := reflect.ValueOf(in)

	for f := 0; f < rint.NumField(); f++ {
		field := rint.Type().Field(f)
		fn := ra.MethodByName(field.Name)

		rint.Field(f).Set(reflect.MakeFunc(field.Type, func(args []reflect.Value) (results []reflect.Value) {
			ctx := args[0].Interface().(context.Context)
			// upsert function name into context
			ctx, _ = tag.New(ctx, tag.Upsert(metrics.Endpoint, field.Name))
			stop := metrics.Timer(ctx, metrics.APIRequestDuration)
			defer stop()
			// pass tagged ctx back into function call
			args[0] = reflect.ValueOf(ctx)
			return fn.Call(args)
		}))
	}
}

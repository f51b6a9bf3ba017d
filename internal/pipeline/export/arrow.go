package export

import (
	"io"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"github.com/driftline/argopipe/internal/domain/model"
)

// observationSchema is the Arrow schema of the columnar observation table.
var observationSchema = arrow.NewSchema([]arrow.Field{
	{Name: "profile_id", Type: arrow.BinaryTypes.String},
	{Name: "pressure", Type: arrow.PrimitiveTypes.Float64},
	{Name: "parameter", Type: arrow.BinaryTypes.String},
	{Name: "value", Type: arrow.PrimitiveTypes.Float64},
	{Name: "qc_flag", Type: arrow.BinaryTypes.String},
	{Name: "data_mode", Type: arrow.BinaryTypes.String},
	{Name: "adjusted", Type: arrow.FixedWidthTypes.Boolean},
}, nil)

// writeObservationArrow writes the observation table as an Arrow IPC file.
func writeObservationArrow(w io.Writer, obs []model.Observation) error {
	pool := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(pool, observationSchema)
	defer builder.Release()

	profileIDs := builder.Field(0).(*array.StringBuilder)
	pressures := builder.Field(1).(*array.Float64Builder)
	parameters := builder.Field(2).(*array.StringBuilder)
	values := builder.Field(3).(*array.Float64Builder)
	flags := builder.Field(4).(*array.StringBuilder)
	dataModes := builder.Field(5).(*array.StringBuilder)
	adjusted := builder.Field(6).(*array.BooleanBuilder)

	for i := range obs {
		o := &obs[i]
		profileIDs.Append(o.ProfileID)
		pressures.Append(o.Pressure)
		parameters.Append(o.Parameter)
		values.Append(o.Value)
		flags.Append(o.Flag)
		dataModes.Append(o.Mode.String())
		adjusted.Append(o.Adjusted)
	}

	record := builder.NewRecord()
	defer record.Release()

	writer, err := ipc.NewFileWriter(w, ipc.WithSchema(observationSchema), ipc.WithAllocator(pool))
	if err != nil {
		return err
	}
	if err := writer.Write(record); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

package stubs

import (
	"relgraph/src/domain"

	"github.com/brianvoe/gofakeit/v6"
)

// Record é um registro da camada de registros, como visto pelos testes.
type Record struct {
	Ref       domain.NodeRef
	Fields    map[string]interface{}
	IsDeleted bool
}

type RecordStub struct {
	record Record
}

func NewRecordStub() RecordStub {
	return RecordStub{record: Record{
		Ref: domain.NodeRef{
			CollectionID: int64(gofakeit.Number(1, 50)),
			RecordID:     int64(gofakeit.Number(1, 1000000)),
		},
		Fields: map[string]interface{}{
			"name":  gofakeit.Name(),
			"email": gofakeit.Email(),
			"phone": gofakeit.Phone(),
		},
	}}
}

func (rs RecordStub) WithRef(ref domain.NodeRef) RecordStub {
	rs.record.Ref = ref
	return rs
}

func (rs RecordStub) WithFields(fields map[string]interface{}) RecordStub {
	rs.record.Fields = fields
	return rs
}

func (rs RecordStub) Deleted() RecordStub {
	rs.record.IsDeleted = true
	return rs
}

func (rs RecordStub) Get() Record {
	return rs.record
}

package repositories_test

import (
	"context"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/helper/env"
	"relgraph/src/infra/postgres"
	"relgraph/src/test_artefacts/stubs"
	"relgraph/src/test_artefacts/test_seeder"
)

const (
	people    int64 = 1
	companies int64 = 2
)

func person(id int64) domain.NodeRef  { return domain.NodeRef{CollectionID: people, RecordID: id} }
func company(id int64) domain.NodeRef { return domain.NodeRef{CollectionID: companies, RecordID: id} }

// openTestDatabase conecta no banco de teste, garante o schema e limpa as tabelas.
func openTestDatabase(ctx context.Context) (*postgres.ReadWriteClient, test_seeder.TestSeeder) {
	dbReadHost := env.MustGetString("TEST_DB_READ_HOST")
	dbWriteHost := env.MustGetString("TEST_DB_WRITE_HOST")
	dbReadPort := env.GetString("TEST_DB_READ_PORT", "5432")
	dbWritePort := env.GetString("TEST_DB_WRITE_PORT", "5432")
	dbname := env.MustGetString("TEST_DB_NAME")
	dbUser := env.MustGetString("TEST_DB_USER")
	dbPassword := env.MustGetString("TEST_DB_PASSWORD")
	maxConnections := env.GetInt("TEST_DB_MAX_POOL_CONNECTIONS", 25)

	readWriteClient, err := postgres.NewReadWriteClient(dbReadHost, dbWriteHost, dbReadPort, dbWritePort, dbname, dbUser, dbPassword, maxConnections)
	if err != nil {
		panic(err)
	}

	seeder := test_seeder.New(readWriteClient.GetWritePool())
	seeder.EnsureSchema(ctx)
	seeder.TruncateTables(ctx)

	return readWriteClient, seeder
}

// seedEdgeType insere o tipo e devolve a versão com id gerado.
func seedEdgeType(ctx context.Context, seeder test_seeder.TestSeeder, stub stubs.EdgeTypeStub) entities.EdgeType {
	edgeType := stub.Get()
	seeder.InsertEdgeType(ctx, &edgeType)
	return edgeType
}

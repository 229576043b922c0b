package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// ReadWriteClient separa o pool de leitura (réplica) do pool de escrita (primário).
// Travessias e caminhos mais curtos usam a réplica; criação/remoção de arestas,
// cardinalidade e o path cache usam o primário.
type ReadWriteClient struct {
	readPool  *pgxpool.Pool
	writePool *pgxpool.Pool
}

func NewReadWriteClient(
	readHost string,
	writeHost string,
	readPort string,
	writePort string,
	dbname string,
	username string,
	password string,
	maxConnections int,
) (*ReadWriteClient, error) {

	readPool, err := NewPostgresClient(readHost, readPort, dbname, username, password, maxConnections)
	if err != nil {
		return nil, err
	}

	writePool, err := NewPostgresClient(writeHost, writePort, dbname, username, password, maxConnections)
	if err != nil {
		readPool.Close()
		return nil, err
	}

	return &ReadWriteClient{
		readPool:  readPool,
		writePool: writePool,
	}, nil
}

func (rwc *ReadWriteClient) GetReadPool() *pgxpool.Pool {
	return rwc.readPool
}

func (rwc *ReadWriteClient) GetWritePool() *pgxpool.Pool {
	return rwc.writePool
}

func (rwc *ReadWriteClient) Close() {
	if rwc.readPool != nil {
		rwc.readPool.Close()
	}
	if rwc.writePool != nil {
		rwc.writePool.Close()
	}
}

// NewReadWriteClientFromPools monta o client a partir de pools já abertos
// (testes usam o mesmo pool nos dois papéis).
func NewReadWriteClientFromPools(readPool *pgxpool.Pool, writePool *pgxpool.Pool) *ReadWriteClient {
	return &ReadWriteClient{readPool: readPool, writePool: writePool}
}

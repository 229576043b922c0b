//go:build datagen_postgres
// +build datagen_postgres

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"relgraph/src/helper/env"
	"relgraph/src/infra/postgres"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Coleções usadas pelo gerador.
const (
	peopleCollection    int64 = 1
	companiesCollection int64 = 2
	projectsCollection  int64 = 3
)

// Bundle é uma empresa com seus funcionários e projetos. Cada bundle respeita
// a cardinalidade dos tipos de sistema: uma empresa por pessoa, um gestor por
// pessoa, um dono por projeto.
type Bundle struct {
	Company  map[string]interface{}
	People   []map[string]interface{}
	Projects []map[string]interface{}
}

type seedEdge struct {
	edgeTypeID int64
	source     [2]int64
	target     [2]int64
	strength   float64
}

func newSQLClient() (*pgxpool.Pool, error) {
	dbHost := env.MustGetString("DB_WRITE_HOST")
	dbPort := env.GetString("DB_WRITE_PORT", "5432")
	dbname := env.MustGetString("DB_NAME")
	dbUser := env.MustGetString("DB_USER")
	dbPassword := env.MustGetString("DB_PASSWORD")
	maxConnections := 50
	return postgres.NewPostgresClient(dbHost, dbPort, dbname, dbUser, dbPassword, maxConnections)
}

func main() {
	rand.Seed(time.Now().UnixNano())

	numCompanies := flag.Int("companies", 1000, "Número de empresas a serem criadas. Use -1 para infinito.")
	peoplePerCompany := flag.Int("people", 20, "Funcionários por empresa")
	projectsPerCompany := flag.Int("projects", 5, "Projetos por empresa")
	bulkSize := flag.Int("bulk-size", 50, "Bundles por transação")
	numConsumers := flag.Int("consumers", 8, "Workers de escrita")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := newSQLClient()
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	if err := postgres.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	edgeTypes, err := loadEdgeTypes(ctx, db)
	if err != nil {
		log.Fatalf("Failed to load edge types (run seed-edge-types first): %v", err)
	}

	dataChan := make(chan Bundle, (*bulkSize)*(*numConsumers)*2)

	var wg sync.WaitGroup
	var totalProcessed, totalErrors int64
	startTime := time.Now()

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				processed := atomic.LoadInt64(&totalProcessed)
				errors := atomic.LoadInt64(&totalErrors)
				elapsed := time.Since(startTime)
				fmt.Printf("📊 Companies: %d | Errors: %d | Rate: %.1f/s | Elapsed: %v\n",
					processed, errors, float64(processed)/elapsed.Seconds(), elapsed.Round(time.Second))
			}
		}
	}()

	for i := 0; i < *numConsumers; i++ {
		wg.Add(1)
		go consumer(ctx, &wg, db, edgeTypes, dataChan, *bulkSize, i+1, &totalProcessed, &totalErrors)
	}

	wg.Add(1)
	go producer(ctx, &wg, dataChan, *numCompanies, *peoplePerCompany, *projectsPerCompany)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n🛑 Shutdown signal received, stopping...")
		cancel()
	}()

	wg.Wait()

	elapsed := time.Since(startTime)
	processed := atomic.LoadInt64(&totalProcessed)
	fmt.Printf("\n🏁 Seeding finished! %d companies in %v (%d errors)\n",
		processed, elapsed.Round(time.Second), atomic.LoadInt64(&totalErrors))
}

func loadEdgeTypes(ctx context.Context, db *pgxpool.Pool) (map[string]int64, error) {
	rows, err := db.Query(ctx, `SELECT slug, id FROM edge_types WHERE slug = ANY($1) AND NOT is_deleted`,
		[]string{"works_at", "reports_to", "follows", "related_to", "owns"})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var slug string
		var id int64
		if err := rows.Scan(&slug, &id); err != nil {
			return nil, err
		}
		ids[slug] = id
	}
	if len(ids) < 5 {
		return nil, fmt.Errorf("expected 5 system edge types, found %d", len(ids))
	}
	return ids, rows.Err()
}

func producer(ctx context.Context, wg *sync.WaitGroup, dataChan chan<- Bundle, numCompanies, peoplePerCompany, projectsPerCompany int) {
	defer wg.Done()
	defer close(dataChan)

	isInfinite := numCompanies == -1
	for count := 0; isInfinite || count < numCompanies; count++ {
		bundle := Bundle{
			Company: map[string]interface{}{
				"name":     faker.Word() + " " + faker.LastName(),
				"domain":   faker.DomainName(),
				"industry": []string{"Technology", "Finance", "Healthcare", "Retail"}[rand.Intn(4)],
			},
		}

		for i := 0; i < peoplePerCompany; i++ {
			bundle.People = append(bundle.People, map[string]interface{}{
				"name":  faker.Name(),
				"email": faker.Email(),
				"phone": faker.Phonenumber(),
				"title": []string{"Engineer", "Manager", "Analyst", "Director"}[rand.Intn(4)],
			})
		}

		for i := 0; i < projectsPerCompany; i++ {
			bundle.Projects = append(bundle.Projects, map[string]interface{}{
				"name":   faker.Word(),
				"status": []string{"active", "paused", "done"}[rand.Intn(3)],
				"budget": rand.Intn(1000000),
			})
		}

		select {
		case dataChan <- bundle:
		case <-ctx.Done():
			fmt.Println("Producer stopping.")
			return
		}
	}
}

func consumer(ctx context.Context, wg *sync.WaitGroup, db *pgxpool.Pool, edgeTypes map[string]int64, dataChan <-chan Bundle, bulkSize, consumerID int, totalProcessed, totalErrors *int64) {
	defer wg.Done()
	log.Printf("🚀 Consumer %d started", consumerID)

	bundles := make([]Bundle, 0, bulkSize)
	flush := func() {
		if len(bundles) == 0 {
			return
		}
		if err := bulkInsert(ctx, db, edgeTypes, bundles); err != nil {
			log.Printf("❌ Consumer %d: ERROR on bulk insert: %v", consumerID, err)
			atomic.AddInt64(totalErrors, 1)
		} else {
			atomic.AddInt64(totalProcessed, int64(len(bundles)))
		}
		bundles = make([]Bundle, 0, bulkSize)
	}

	for {
		select {
		case b, ok := <-dataChan:
			if !ok {
				flush()
				log.Printf("✅ Consumer %d stopping.", consumerID)
				return
			}
			bundles = append(bundles, b)
			if len(bundles) >= bulkSize {
				flush()
			}
		case <-ctx.Done():
			log.Printf("🛑 Consumer %d received stop signal.", consumerID)
			return
		}
	}
}

func insertRecords(ctx context.Context, tx pgx.Tx, collectionID int64, payloads []map[string]interface{}) ([]int64, error) {
	data := make([]string, len(payloads))
	for i, payload := range payloads {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data[i] = string(raw)
	}

	rows, err := tx.Query(ctx, `
		INSERT INTO records (collection_id, data)
		SELECT $1, d FROM UNNEST($2::jsonb[]) WITH ORDINALITY AS t (d, ord)
		ORDER BY ord
		RETURNING id`, collectionID, data)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0, len(payloads))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func bulkInsert(ctx context.Context, db *pgxpool.Pool, edgeTypes map[string]int64, bundles []Bundle) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var edges []seedEdge

	for _, bundle := range bundles {
		companyIDs, err := insertRecords(ctx, tx, companiesCollection, []map[string]interface{}{bundle.Company})
		if err != nil {
			return fmt.Errorf("failed to insert company: %w", err)
		}
		peopleIDs, err := insertRecords(ctx, tx, peopleCollection, bundle.People)
		if err != nil {
			return fmt.Errorf("failed to insert people: %w", err)
		}
		projectIDs, err := insertRecords(ctx, tx, projectsCollection, bundle.Projects)
		if err != nil {
			return fmt.Errorf("failed to insert projects: %w", err)
		}

		company := [2]int64{companiesCollection, companyIDs[0]}

		for i, personID := range peopleIDs {
			person := [2]int64{peopleCollection, personID}
			edges = append(edges, seedEdge{edgeTypes["works_at"], person, company, 1})

			// pessoa 0 é a diretora; as demais reportam para alguém anterior
			if i > 0 {
				manager := [2]int64{peopleCollection, peopleIDs[rand.Intn(i)]}
				edges = append(edges, seedEdge{edgeTypes["reports_to"], person, manager, 1})
			}

			followed := peopleIDs[rand.Intn(len(peopleIDs))]
			if followed != personID {
				edges = append(edges, seedEdge{edgeTypes["follows"], person, [2]int64{peopleCollection, followed}, rand.Float64()})
			}

			if len(projectIDs) > 0 {
				project := [2]int64{projectsCollection, projectIDs[rand.Intn(len(projectIDs))]}
				edges = append(edges, seedEdge{edgeTypes["related_to"], person, project, rand.Float64()})
			}
		}

		for _, projectID := range projectIDs {
			edges = append(edges, seedEdge{edgeTypes["owns"], company, [2]int64{projectsCollection, projectID}, 1})
		}
	}

	rows := make([][]interface{}, len(edges))
	for i, edge := range edges {
		rows[i] = []interface{}{edge.edgeTypeID, edge.source[0], edge.source[1], edge.target[0], edge.target[1], edge.strength}
	}

	_, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"edges"},
		[]string{"edge_type_id", "source_collection_id", "source_record_id", "target_collection_id", "target_record_id", "strength"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy edges: %w", err)
	}

	return tx.Commit(ctx)
}

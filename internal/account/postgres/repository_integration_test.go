// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pokeu/pokeu/internal/account"
	"github.com/pokeu/pokeu/internal/account/postgres"
)

var _ = Describe("PostgreSQL account repository", Ordered, func() {
	var (
		ctx       context.Context
		container *tcpostgres.PostgresContainer
		connStr   string
		pool      *pgxpool.Pool
		repo      *postgres.Repository
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("pokeu_test"),
			tcpostgres.WithUsername("pokeu"),
			tcpostgres.WithPassword("pokeu"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err := postgres.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		pool, err = postgres.Connect(ctx, connStr, postgres.DefaultConnectOptions())
		Expect(err).NotTo(HaveOccurred())
		repo = postgres.NewRepository(pool)
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	BeforeEach(func() {
		_, err := pool.Exec(ctx, `TRUNCATE users`)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("migrations", func() {
		It("re-applies as a no-op and keeps data", func() {
			_, err := repo.Insert(ctx, "ash@gmail.com", "Ash", "hash", time.Now())
			Expect(err).NotTo(HaveOccurred())

			migrator, err := postgres.NewMigrator(connStr)
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = migrator.Close() }()
			Expect(migrator.Up()).To(Succeed())

			version, dirty, err := migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(Equal(uint(1)))
			Expect(dirty).To(BeFalse())

			accounts, err := repo.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(accounts).To(HaveLen(1))
		})
	})

	Describe("uniqueness", func() {
		It("maps constraint names to fields", func() {
			_, err := repo.Insert(ctx, "ash@gmail.com", "Ash", "hash", time.Now())
			Expect(err).NotTo(HaveOccurred())

			_, err = repo.Insert(ctx, "ASH@gmail.com", "Ash2", "hash", time.Now())
			Expect(err).To(MatchError(account.ErrConstraintViolation))

			_, err = repo.Insert(ctx, "other@gmail.com", "Ash", "hash", time.Now())
			Expect(err).To(MatchError(account.ErrConstraintViolation))

			exists, err := repo.Exists(ctx, account.FieldDisplayName, "Ash2")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})
	})

	Describe("service round trip", func() {
		It("logs in with the registered password by either identifier", func() {
			svc, err := account.NewService(repo, account.NewMultiHasher(), account.DefaultPolicy())
			Expect(err).NotTo(HaveOccurred())

			id, err := svc.Register(ctx, "misty@gmail.com", "Starmie(2)", "Misty")
			Expect(err).NotTo(HaveOccurred())

			byName, err := svc.Login(ctx, account.FieldDisplayName, "Misty", "Starmie(2)")
			Expect(err).NotTo(HaveOccurred())
			Expect(byName.ID).To(Equal(id.ID))

			_, err = svc.Login(ctx, account.FieldEmail, "misty@gmail.com", "wrong")
			Expect(account.ErrorCode(err)).To(Equal(account.CodeWrongPassword))
		})

		It("lets exactly one concurrent registration win", func() {
			svc, err := account.NewService(repo, account.NewMultiHasher(), account.DefaultPolicy())
			Expect(err).NotTo(HaveOccurred())

			const n = 4
			var wg sync.WaitGroup
			errs := make([]error, n)
			for i := range n {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()
					_, errs[i] = svc.Register(ctx, "race@gmail.com", "Pikachu1!", "Racer"+string(rune('A'+i)))
				}(i)
			}
			wg.Wait()

			wins := 0
			for _, err := range errs {
				if err == nil {
					wins++
					continue
				}
				Expect(account.ErrorCode(err)).To(BeElementOf(account.CodeEmailTaken, account.CodeInUse))
			}
			Expect(wins).To(Equal(1))
		})
	})
})

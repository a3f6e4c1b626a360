// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

//go:build integration

package store_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/pillarhq/pillar/internal/apperr"
	"github.com/pillarhq/pillar/internal/config"
	"github.com/pillarhq/pillar/internal/store"
)

var _ = Describe("Gateway against PostgreSQL", Ordered, func() {
	var (
		ctx     context.Context
		cfg     config.Database
		cleanup func()
		gw      *store.Gateway
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		cfg, cleanup, err = startPostgres(ctx)
		Expect(err).NotTo(HaveOccurred())
		gw, err = store.NewPostgresGateway(cfg, false)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if cleanup != nil {
			cleanup()
		}
	})

	Describe("Execute", func() {
		It("returns rows keyed by column", func() {
			res, err := gw.Execute(ctx, "SELECT 1 + $1::int AS answer", 41)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Rows).To(HaveLen(1))
			Expect(res.Rows[0]).To(HaveKeyWithValue("answer", int32(42)))
		})

		It("surfaces statement errors", func() {
			_, err := gw.Execute(ctx, "SELECT * FROM no_such_table")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("no_such_table"))
		})

		It("does not leak connections", func() {
			for range 10 {
				_, err := gw.Execute(ctx, "SELECT 1")
				Expect(err).NotTo(HaveOccurred())
			}
			// Backends exit asynchronously after the client hangs up.
			Eventually(func() (int, error) {
				health, err := gw.Health(ctx, cfg.Name)
				if err != nil {
					return 0, err
				}
				return health.OpenConnections, nil
			}).Should(Equal(1))
		})
	})

	Describe("Health", func() {
		It("reports a supported server", func() {
			health, err := gw.Health(ctx, cfg.Name)
			Expect(err).NotTo(HaveOccurred())
			Expect(health.MaxConnections).To(BeNumerically(">", 0))

			ok, err := store.CheckServerVersion(health.Version)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})
	})

	Describe("Migrator", func() {
		var migrator *store.Migrator

		BeforeAll(func() {
			var err error
			migrator, err = store.NewMigrator(gw)
			Expect(err).NotTo(HaveOccurred())
		})

		It("lists everything as pending on an empty database", func() {
			pending, err := migrator.ListPending(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(len(migrator.Names())))
			for _, m := range pending {
				Expect(m.AppliedAt).To(BeNil())
			}

			// Listing is read only.
			again, err := migrator.ListPending(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(Equal(pending))
		})

		It("applies pending migrations once across concurrent callers", func() {
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				applied []store.Migration
				errs    []error
			)
			for range 3 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					got, err := migrator.ApplyPending(ctx)
					mu.Lock()
					defer mu.Unlock()
					applied = append(applied, got...)
					if err != nil {
						errs = append(errs, err)
					}
				}()
			}
			wg.Wait()
			Expect(errs).To(BeEmpty())
			Expect(applied).To(HaveLen(len(migrator.Names())))

			pending, err := migrator.ListPending(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())

			ledger, err := migrator.Applied(ctx)
			Expect(err).NotTo(HaveOccurred())
			names := make([]string, len(ledger))
			for i, m := range ledger {
				names[i] = m.Name
			}
			Expect(names).To(Equal(migrator.Names()))
		})

		It("returns an empty list when nothing is pending", func() {
			applied, err := migrator.ApplyPending(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeEmpty())
		})

		It("reports an unreachable database as unavailable", func() {
			bad := cfg
			bad.Port = 1
			down, err := store.NewPostgresGateway(bad, false)
			Expect(err).NotTo(HaveOccurred())
			m, err := store.NewMigrator(down)
			Expect(err).NotTo(HaveOccurred())

			_, err = m.ListPending(ctx)
			Expect(apperr.IsKind(err, apperr.KindServiceUnavailable)).To(BeTrue())
		})
	})
})

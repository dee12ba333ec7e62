package postgres_test

import (
	"context"
	"testing"

	accessDatamodel "github.com/frahmantamala/care-access/internal/core/datamodel/access"
	"github.com/frahmantamala/care-access/internal/preference"
	preferencePostgres "github.com/frahmantamala/care-access/internal/preference/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestPreferencePostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Preference Postgres Suite")
}

var _ = Describe("User KV Repository", func() {
	var (
		db   *gorm.DB
		repo preference.KV
		ctx  context.Context
	)

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(db.AutoMigrate(&accessDatamodel.UserKV{})).To(Succeed())

		repo = preferencePostgres.NewKVRepository(db)
		ctx = context.Background()
	})

	It("returns ErrNotFound for a key never written", func() {
		_, err := repo.Get(ctx, "module-progress-x")
		Expect(err).To(MatchError(preference.ErrNotFound))
	})

	It("overwrites on a second write", func() {
		Expect(repo.Set(ctx, "user-preferences-x", []byte(`{"auto_route":true}`))).To(Succeed())
		Expect(repo.Set(ctx, "user-preferences-x", []byte(`{"auto_route":false}`))).To(Succeed())

		raw, err := repo.Get(ctx, "user-preferences-x")
		Expect(err).NotTo(HaveOccurred())
		Expect(raw).To(MatchJSON(`{"auto_route":false}`))

		var count int64
		Expect(db.Model(&accessDatamodel.UserKV{}).Count(&count).Error).To(Succeed())
		Expect(count).To(Equal(int64(1)))
	})

	It("surfaces database errors", func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())

		_, err = repo.Get(ctx, "k")
		Expect(err).To(HaveOccurred())
		Expect(err).NotTo(MatchError(preference.ErrNotFound))
	})
})

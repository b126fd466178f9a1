package main

import (
	"context"
	"flag"
	"log"
	"sort"

	"go.uber.org/zap"

	"food-delivery/internal/repositories"
	"food-delivery/pkg/config"
	"food-delivery/pkg/database/postgresql"
	"food-delivery/pkg/service"
	"food-delivery/seeders"
)

func main() {
	log.Println("======================================================")
	log.Println("       🌱 СИСТЕМА СИДЕРОВ (Демо-данные)              ")
	log.Println("======================================================")

	orderCount := flag.Int("orders", 0, "Сколько демонстрационных заказов создать")
	printTokens := flag.Bool("tokens", false, "Вывести JWT для демонстрационных участников")
	flag.Parse()

	if *orderCount <= 0 && !*printTokens {
		log.Println("❌ Не выбран ни один сидер для запуска.")
		log.Println("")
		log.Println("Доступные флаги:")
		flag.PrintDefaults()
		log.Println("")
		log.Println("Примеры использования:")
		log.Println("  go run ./seeders/cmd/seed -orders 20")
		log.Println("  go run ./seeders/cmd/seed -tokens")
		log.Println("======================================================")
		return
	}

	cfg := config.New()
	ctx := context.Background()

	if *printTokens {
		tokens, err := seeders.DemoTokens(service.NewJWTService(cfg.JWT.SecretKey, cfg.JWT.AccessTokenTTL, zap.NewNop()))
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		keys := make([]string, 0, len(tokens))
		for k := range tokens {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			log.Printf("%-22s %s", k, tokens[k])
		}
		log.Println("======================================================")
	}

	if *orderCount > 0 {
		dbPool, err := postgresql.ConnectDB(ctx, cfg.Postgres, zap.NewNop())
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		defer dbPool.Close()

		if err := postgresql.Migrate(ctx, dbPool, zap.NewNop()); err != nil {
			log.Fatalf("❌ %v", err)
		}
		repo := repositories.NewOrderRepository(dbPool, zap.NewNop())
		if err := seeders.SeedDemoOrders(ctx, repo, *orderCount); err != nil {
			log.Fatalf("❌ %v", err)
		}
		log.Println("======================================================")
	}

	log.Println("✅ Все указанные операции сидирования успешно завершены.")
}

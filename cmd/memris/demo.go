/*
Copyright 2025 Memris Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package main

import (
	"github.com/Thejuampi/memris-sub010/internal/storage"
	"github.com/Thejuampi/memris-sub010/pkg/memris"
)

// seedDemo creates two small related tables so the shell is usable
// out of the box.
func seedDemo(eng *memris.Engine) error {
	users, err := eng.CreateTable(storage.Schema{
		TableName: "users",
		Columns: []storage.SchemaColumn{
			{Name: "id", Kind: storage.KindInt64},
			{Name: "name", Kind: storage.KindString},
			{Name: "age", Kind: storage.KindInt64},
		},
	})
	if err != nil {
		return err
	}
	if err := users.CreateEqualityIndex("name"); err != nil {
		return err
	}
	if err := users.CreateRangeIndex("age"); err != nil {
		return err
	}

	orders, err := eng.CreateTable(storage.Schema{
		TableName: "orders",
		Columns: []storage.SchemaColumn{
			{Name: "id", Kind: storage.KindInt64},
			{Name: "user_id", Kind: storage.KindInt64},
			{Name: "total", Kind: storage.KindFloat64},
		},
	})
	if err != nil {
		return err
	}
	if err := orders.CreateAdjacencyIndex("user_id"); err != nil {
		return err
	}

	for _, u := range []struct {
		name string
		age  int64
	}{
		{"ada", 36}, {"grace", 45}, {"alan", 41}, {"edsger", 39},
	} {
		if _, err := users.Insert(int64(0), u.name, u.age); err != nil {
			return err
		}
	}
	for _, o := range []struct {
		user  int64
		total float64
	}{
		{1, 12.50}, {1, 80.00}, {2, 5.99}, {3, 42.00},
	} {
		if _, err := orders.Insert(int64(0), o.user, o.total); err != nil {
			return err
		}
	}
	return nil
}

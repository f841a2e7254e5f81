// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package wkk interns row column names so rows from every dataset share
// a single handle per distinct key.
package wkk

import "unique"

type rowkey string

type RowKey = unique.Handle[rowkey]

func NewRowKey(s string) RowKey {
	return unique.Make(rowkey(s))
}

func RowKeyValue(rk RowKey) string {
	return string(rk.Value())
}

// commonKeys maps column names seen in most text corpora to pre-allocated RowKeys
var commonKeys = map[string]RowKey{
	"text":        unique.Make(rowkey("text")),
	"content":     unique.Make(rowkey("content")),
	"id":          unique.Make(rowkey("id")),
	"metadata":    unique.Make(rowkey("metadata")),
	"dataset":     unique.Make(rowkey("dataset")),
	"url":         unique.Make(rowkey("url")),
	"title":       unique.Make(rowkey("title")),
	"source":      unique.Make(rowkey("source")),
	"language":    unique.Make(rowkey("language")),
	"date":        unique.Make(rowkey("date")),
	"token_count": unique.Make(rowkey("token_count")),
}

var (
	// RowKeyText: "text"
	RowKeyText = commonKeys["text"]

	// RowKeyID: "id"
	RowKeyID = commonKeys["id"]

	// RowKeyMetadata: "metadata"
	RowKeyMetadata = commonKeys["metadata"]

	// RowKeyDataset: "dataset"
	RowKeyDataset = commonKeys["dataset"]

	// RowKeyTokenCount: "token_count"
	RowKeyTokenCount = commonKeys["token_count"]
)

// Copyright (c) 2025 The iso2raw Authors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of iso2raw.
//
// iso2raw is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// iso2raw is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with iso2raw.  If not, see <https://www.gnu.org/licenses/>.

package chd

func init() {
	RegisterCodec(CodecZlib, func() (Codec, error) { return CodecFunc(inflate), nil })
	RegisterCodec(CodecCDZlib, func() (Codec, error) {
		return &cdCodec{name: "cdzl", base: CodecFunc(inflate), sub: CodecFunc(inflate)}, nil
	})
}

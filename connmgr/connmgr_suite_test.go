/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package connmgr

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestConnMgr(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, t.Name())
}

package autoreply_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/autoreply/internal/autoreply"
	"basegraph.app/autoreply/internal/model"
	"basegraph.app/autoreply/internal/settings"
)

var _ = Describe("Keyword rules", func() {
	Describe("ParseKeywordRules", func() {
		It("sorts longest keyword first whatever the object order", func() {
			for _, raw := range []string{
				`{"reset":"short","password reset":"long"}`,
				`{"password reset":"long","reset":"short"}`,
			} {
				rules, err := autoreply.ParseKeywordRules(raw)
				Expect(err).NotTo(HaveOccurred())
				Expect(rules[0].Keyword).To(Equal("password reset"))

				reply, ok := autoreply.MatchKeyword(rules, "Please do a PASSWORD RESET for me")
				Expect(ok).To(BeTrue())
				Expect(reply).To(Equal("long"))
			}
		})

		It("keeps object order for keywords of equal length", func() {
			rules, err := autoreply.ParseKeywordRules(`{"bbb":"2","aaa":"1","cc":"3"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(rules).To(Equal([]autoreply.KeywordRule{
				{Keyword: "bbb", Reply: "2"},
				{Keyword: "aaa", Reply: "1"},
				{Keyword: "cc", Reply: "3"},
			}))

			reply, ok := autoreply.MatchKeyword(rules, "aaa and bbb")
			Expect(ok).To(BeTrue())
			Expect(reply).To(Equal("2"))
		})

		It("measures length in characters, not bytes", func() {
			rules, err := autoreply.ParseKeywordRules(`{"退款":"cjk","refund":"latin"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(rules[0].Keyword).To(Equal("refund"))
		})

		It("returns no rules for an empty object", func() {
			rules, err := autoreply.ParseKeywordRules(`{}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(rules).To(BeEmpty())
		})

		DescribeTable("rejects text that is not an object of strings",
			func(raw string) {
				_, err := autoreply.ParseKeywordRules(raw)
				Expect(err).To(HaveOccurred())
			},
			Entry("array", `["a","b"]`),
			Entry("number value", `{"a":1}`),
			Entry("truncated", `{"a":"b"`),
			Entry("garbage", `not json`),
		)
	})

	Describe("keyword strategy", func() {
		var (
			ctx      context.Context
			strategy autoreply.Strategy
		)

		BeforeEach(func() {
			ctx = context.Background()
			strategy = autoreply.NewKeywordStrategy()
		})

		decide := func(message string, values map[string]string) autoreply.Decision {
			d, err := strategy.Decide(ctx, autoreply.Request{
				Ticket:  &model.Ticket{ID: 1, UserID: 2},
				Message: message,
				Config:  settings.New(values),
			})
			Expect(err).NotTo(HaveOccurred())
			return d
		}

		It("passes when keyword replies are disabled", func() {
			d := decide("reset", map[string]string{
				settings.KeyEnableKeywordReply: "false",
				settings.KeyKeywordRules:       `{"reset":"x"}`,
			})
			Expect(d.Handled).To(BeFalse())
		})

		It("treats undecodable rules as no rules", func() {
			d := decide("reset", map[string]string{settings.KeyKeywordRules: `{"reset":`})
			Expect(d.Handled).To(BeFalse())
		})

		It("passes when nothing matches", func() {
			d := decide("hello", map[string]string{settings.KeyKeywordRules: `{"reset":"x"}`})
			Expect(d).To(Equal(autoreply.Pass()))
		})

		It("skips rules with a blank reply and falls through to the next match", func() {
			d := decide("password reset please", map[string]string{
				settings.KeyKeywordRules: `{"password reset":"  ","reset":"See FAQ #3"}`,
			})
			Expect(d).To(Equal(autoreply.Handled("See FAQ #3")))
		})

		It("passes when the only matching rule has a blank reply", func() {
			d := decide("reset", map[string]string{settings.KeyKeywordRules: `{"reset":""}`})
			Expect(d).To(Equal(autoreply.Pass()))
		})
	})
})
